package audithook

// Action constants for audit events.
const (
	// Credit actions
	ActionCreditsGranted  = "credits.granted"
	ActionCreditsSpent    = "credits.spent"
	ActionCreditsRefunded = "credits.refunded"
	ActionBalanceChanged  = "balance.changed"

	// Job actions
	ActionJobSubmitted = "job.submitted"
	ActionJobCompleted = "job.completed"
	ActionJobFailed    = "job.failed"
	ActionJobCancelled = "job.cancelled"

	// Settlement actions
	ActionGrantApplied     = "settlement.grant"
	ActionPurchaseSettled  = "settlement.purchase"
	ActionSettlementSynced = "settlement.synced"
)

// Resource constants for audit events.
const (
	ResourceTransaction = "transaction"
	ResourceBalance     = "balance"
	ResourceJob         = "job"
	ResourceGrant       = "grant"
	ResourceSettlement  = "settlement"
)

// Category constants for audit events.
const (
	CategoryCredits    = "credits"
	CategoryJobs       = "jobs"
	CategorySettlement = "settlement"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
