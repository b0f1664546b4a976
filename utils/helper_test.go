package utils

import "testing"

func TestNormalizeAttributeValue(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"red", "RED"},
		{"  dark   red ", "DARK RED"},
		{"Sea\tFreight", "SEA FREIGHT"},
		{"X1 PRO", "X1 PRO"},
	}
	for _, c := range cases {
		if got := NormalizeAttributeValue(c.in); got != c.want {
			t.Errorf("NormalizeAttributeValue(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestJwtRoundTrip(t *testing.T) {
	token, err := JwtGenerate(7, "Reviewer", "reviewer")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}

	parsed, err := JwtValidate(token)
	if err != nil {
		t.Fatalf("JwtValidate: %v", err)
	}
	claims, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok || !parsed.Valid {
		t.Fatalf("unexpected claims %T valid=%v", parsed.Claims, parsed.Valid)
	}
	if claims.ID != 7 || claims.Name != "Reviewer" || claims.Role != "reviewer" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestJwtValidate_RejectsGarbage(t *testing.T) {
	if _, err := JwtValidate("not-a-token"); err == nil {
		t.Fatal("expected an error for a malformed token")
	}
}
