package payment

import "strings"

// ExecutionStatus is the on-chain outcome reported by the execution engine.
type ExecutionStatus string

const (
	ExecutionPending  ExecutionStatus = "pending"
	ExecutionExecuted ExecutionStatus = "executed"
	ExecutionFailed   ExecutionStatus = "failed"
)

// FailureKind classifies a failed execution for retry decisions and observability.
type FailureKind string

const (
	FailureValidation        FailureKind = "validation"
	FailureInsufficientFunds FailureKind = "insufficient_funds"
	FailureTransient         FailureKind = "transient"
)

// ExecutionResult is produced by one execution attempt. Only Error is persisted
// on the schedule entry; Diagnostics are for logs and callers.
type ExecutionResult struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Status        ExecutionStatus `json:"status"`
	Error         string          `json:"error,omitempty"`
	Kind          FailureKind     `json:"kind,omitempty"`
	Diagnostics   map[string]any  `json:"diagnostics,omitempty"`
}

// Failed builds a failed result of the given kind.
func Failed(kind FailureKind, message string, diagnostics map[string]any) ExecutionResult {
	return ExecutionResult{
		Success:     false,
		Status:      ExecutionFailed,
		Error:       message,
		Kind:        kind,
		Diagnostics: diagnostics,
	}
}

// Outcome is what the state updater needs to know about an attempt.
type Outcome struct {
	Executed      bool
	Error         string
	TransactionID string
	// Pending means TransactionID was broadcast but its receipt is not known yet.
	Pending bool
}

// OutcomeOf converts an execution result into an updater outcome.
func OutcomeOf(r ExecutionResult) Outcome {
	return Outcome{
		Executed:      r.Success,
		Error:         r.Error,
		TransactionID: r.TransactionID,
		Pending:       !r.Success && r.Status == ExecutionPending,
	}
}

// IsInsufficientBalance reports whether a failure message describes missing funds.
// The engine's sufficiency failures always start with "insufficient balance".
func IsInsufficientBalance(message string) bool {
	return strings.Contains(strings.ToLower(message), "insufficient")
}
