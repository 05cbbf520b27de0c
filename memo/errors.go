package memo

import (
	"errors"

	"xdao.co/memo/model"
)

// Kind is a stable failure category. Callers branch on Kind, not on messages.
type Kind string

const (
	KindConfigurationMissing Kind = "ConfigurationMissing"
	KindLedgerFailure        Kind = "LedgerFailure"
	KindFetchFailure         Kind = "FetchFailure"
	KindExtractionFailure    Kind = "ExtractionFailure"
	KindIntegrityFailure     Kind = "IntegrityFailure"
	KindSinkFailure          Kind = "SinkFailure"
)

// Stage names the pipeline step a Kind is raised from.
func (k Kind) Stage() string {
	switch k {
	case KindConfigurationMissing:
		return "config"
	case KindLedgerFailure:
		return "ledger"
	case KindFetchFailure:
		return "fetch"
	case KindExtractionFailure:
		return "extract"
	case KindIntegrityFailure:
		return "verify"
	case KindSinkFailure:
		return "deliver"
	default:
		return ""
	}
}

func (k Kind) code() model.ErrorCode {
	switch k {
	case KindConfigurationMissing:
		return model.ErrConfigurationMissing
	case KindLedgerFailure:
		return model.ErrLedgerFailure
	case KindFetchFailure:
		return model.ErrFetchFailure
	case KindExtractionFailure:
		return model.ErrExtractionFailure
	case KindIntegrityFailure:
		return model.ErrIntegrityFailure
	case KindSinkFailure:
		return model.ErrSinkFailure
	default:
		return model.ErrInternal
	}
}

// Error is the failure of one retrieval. Message is for operators and does
// not include memo content.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the Kind of err, or "" for errors not raised by the pipeline.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// CodedError projects err onto the stable model error.
func CodedError(err error) *model.CodedError {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return model.NewError(model.ErrInternal, "", err.Error())
	}
	return model.NewError(e.Kind.code(), e.Kind.Stage(), e.Error())
}
