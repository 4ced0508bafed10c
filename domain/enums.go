// Package domain defines the core domain models for the run ledger.
package domain

// TransactionType represents the type of a ledger transaction.
type TransactionType string

const (
	TransactionTypeRun    TransactionType = "run"
	TransactionTypeRefill TransactionType = "refill"
	TransactionTypeOther  TransactionType = "other"
)

// ApprovalStatus represents the status of a human-in-the-loop request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// ReportInterval selects the aggregation window of a usage report.
type ReportInterval string

const (
	ReportIntervalDay   ReportInterval = "day"
	ReportIntervalMonth ReportInterval = "month"
	ReportIntervalYear  ReportInterval = "year"
)

// ValidInterval reports whether s is a supported report interval.
func ValidInterval(s string) bool {
	switch ReportInterval(s) {
	case ReportIntervalDay, ReportIntervalMonth, ReportIntervalYear:
		return true
	}
	return false
}
