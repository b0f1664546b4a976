package models

import "testing"

func TestPaginationDefaults(t *testing.T) {
	p := Pagination{}
	if p.Limit() != 50 {
		t.Errorf("default limit = %d, want 50", p.Limit())
	}
	if p.Offset() != 0 {
		t.Errorf("default offset = %d, want 0", p.Offset())
	}
}

func TestPaginationCap(t *testing.T) {
	p := Pagination{Page: 3, PageSize: 9999}
	if p.Limit() != 500 {
		t.Errorf("limit = %d, want capped 500", p.Limit())
	}
	if p.Offset() != 2*500 {
		t.Errorf("offset = %d, want %d", p.Offset(), 2*500)
	}
}
