package models

type LifecycleFlag string

const (
	LifecycleFlagActive    LifecycleFlag = "ACTIVE"
	LifecycleFlagCancelled LifecycleFlag = "CANCELLED"
)

type MappingScope string

const (
	MappingScopeCustomer MappingScope = "customer"
	MappingScopeGlobal   MappingScope = "global"
)

type SourceSide string

const (
	SourceSideOrder    SourceSide = "order"
	SourceSideShipment SourceSide = "shipment"
	// SourceSideAny is written by HITL approvals that apply to both feeds.
	SourceSideAny SourceSide = "any"
)

type ComparisonMethod string

const (
	ComparisonMethodExact      ComparisonMethod = "exact"
	ComparisonMethodSimilarity ComparisonMethod = "similarity"
	ComparisonMethodNumeric    ComparisonMethod = "numeric"
)

type MatchStatus string

const (
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusUnmatched MatchStatus = "unmatched"
	MatchStatusUncertain MatchStatus = "uncertain"
)

type MatchMethod string

const (
	MatchMethodExact              MatchMethod = "exact"
	MatchMethodFuzzy              MatchMethod = "fuzzy"
	MatchMethodDeepFuzzy          MatchMethod = "deep_fuzzy"
	MatchMethodVarianceResolution MatchMethod = "variance_resolution"
	MatchMethodHistorical         MatchMethod = "historical"
	MatchMethodHitl               MatchMethod = "hitl"
)

type QuantityCheckResult string

const (
	QuantityCheckPass QuantityCheckResult = "PASS"
	QuantityCheckFail QuantityCheckResult = "FAIL"
)

type HitlStatus string

const (
	HitlStatusPending  HitlStatus = "pending"
	HitlStatusInReview HitlStatus = "in_review"
	HitlStatusApproved HitlStatus = "approved"
	HitlStatusRejected HitlStatus = "rejected"
	HitlStatusModified HitlStatus = "modified"
)

// IsTerminalHitlStatus reports whether no further transition is allowed.
func IsTerminalHitlStatus(s HitlStatus) bool {
	switch s {
	case HitlStatusApproved, HitlStatusRejected, HitlStatusModified:
		return true
	}
	return false
}

type HitlDecision string

const (
	HitlDecisionApprove HitlDecision = "approve"
	HitlDecisionReject  HitlDecision = "reject"
	HitlDecisionModify  HitlDecision = "modify"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

type AuditAction string

const (
	AuditActionCreate           AuditAction = "create"
	AuditActionUpdate           AuditAction = "update"
	AuditActionSupersede        AuditAction = "supersede"
	AuditActionStatusTransition AuditAction = "status_transition"
)
