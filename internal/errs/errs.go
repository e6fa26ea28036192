package errs

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures so callers can react per stage
// instead of matching on message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindMissingCredential
	KindConfig
	KindDirectoryNotFound
	KindNoDocuments
	KindDocumentLoad
	KindIndexBuild
	KindRetrieval
	KindNoRelevantContext
	KindSynthesis
)

func (k Kind) String() string {
	switch k {
	case KindMissingCredential:
		return "missing_credential"
	case KindConfig:
		return "config"
	case KindDirectoryNotFound:
		return "directory_not_found"
	case KindNoDocuments:
		return "no_documents"
	case KindDocumentLoad:
		return "document_load"
	case KindIndexBuild:
		return "index_build"
	case KindRetrieval:
		return "retrieval"
	case KindNoRelevantContext:
		return "no_relevant_context"
	case KindSynthesis:
		return "synthesis"
	default:
		return "unknown"
	}
}

// Error is a stage failure wrapping the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a stage error without an underlying cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a stage kind to an underlying error. Returns nil if err is nil.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the stage kind from an error chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Exit codes reported by the CLI per failure stage.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitConfig    = 2
	ExitIngestion = 3
	ExitIndex     = 4
	ExitQuery     = 5
)

// ExitCode maps an error to the process exit code for main.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindMissingCredential, KindConfig:
		return ExitConfig
	case KindDirectoryNotFound, KindNoDocuments, KindDocumentLoad:
		return ExitIngestion
	case KindIndexBuild:
		return ExitIndex
	case KindRetrieval, KindNoRelevantContext, KindSynthesis:
		return ExitQuery
	default:
		return ExitFailure
	}
}
