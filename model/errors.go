package model

import "fmt"

type ErrorCode string

const (
	ErrConfigurationMissing ErrorCode = "CONFIGURATION_MISSING"
	ErrLedgerFailure        ErrorCode = "LEDGER_FAILURE"
	ErrFetchFailure         ErrorCode = "FETCH_FAILURE"
	ErrExtractionFailure    ErrorCode = "EXTRACTION_FAILURE"
	ErrIntegrityFailure     ErrorCode = "INTEGRITY_FAILURE"
	ErrSinkFailure          ErrorCode = "SINK_FAILURE"
	ErrInternal             ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Stage   string    `json:"stage,omitempty"`
	Message string    `json:"message"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, stage, message string) *CodedError {
	return &CodedError{Code: code, Stage: stage, Message: message}
}
