// Package ejerr defines the error taxonomy shared by the dispatcher, the
// builder, and the client CLI. Each kind is a sentinel that call sites wrap
// with fmt.Errorf("...: %w", ejerr.ScriptFailed) so callers can errors.Is
// against it without caring about the wrapping layer.
package ejerr

import "errors"

var (
	// BadRequest is a malformed submission: unknown builder id, missing
	// required field, or similar caller error.
	BadRequest = errors.New("bad request")

	// AuthFailed is a wrong or missing builder token.
	AuthFailed = errors.New("authentication failed")

	// NoBuilders means a job was ready to dispatch but no builder was
	// connected by the time its deadline passed.
	NoBuilders = errors.New("no builders connected")

	// BuilderProtocolError is an unexpected message, a framing violation, or
	// a missed liveness ping. It always closes the offending session.
	BuilderProtocolError = errors.New("builder protocol error")

	// ScriptFailed is a build or run script that exited non-zero.
	ScriptFailed = errors.New("script failed")

	// Timeout is a job that exceeded its submitter-supplied deadline.
	Timeout = errors.New("job timed out")

	// Cancelled is a job that finished via cooperative cancellation.
	Cancelled = errors.New("job cancelled")

	// StorageError is a persistence write failure. It is logged, never
	// surfaced to the submitter in place of a terminal outcome.
	StorageError = errors.New("storage error")

	// CheckoutFailed is a non-zero return from the checkout collaborator.
	CheckoutFailed = errors.New("checkout failed")
)

// Code is the taxonomic error code reported over the local control socket
// and by the client CLI, distinct from the Go sentinel errors above so wire
// responses don't leak Go error string formatting.
type Code string

const (
	CodeBadRequest    Code = "bad_request"
	CodeAuthFailed    Code = "auth_failed"
	CodeNoBuilders    Code = "no_builders"
	CodeProtocolError Code = "builder_protocol_error"
	CodeScriptFailed  Code = "script_failed"
	CodeTimeout       Code = "timeout"
	CodeCancelled     Code = "cancelled"
	CodeStorageError  Code = "storage_error"
	CodeCheckoutError Code = "checkout_failed"
	CodeInternal      Code = "internal_error"
)

// CodeFor maps a sentinel (or wrapped sentinel) to its wire code, defaulting
// to CodeInternal for anything it doesn't recognize.
func CodeFor(err error) Code {
	switch {
	case err == nil:
		return ""
	case isErr(err, BadRequest):
		return CodeBadRequest
	case isErr(err, AuthFailed):
		return CodeAuthFailed
	case isErr(err, NoBuilders):
		return CodeNoBuilders
	case isErr(err, BuilderProtocolError):
		return CodeProtocolError
	case isErr(err, ScriptFailed):
		return CodeScriptFailed
	case isErr(err, Timeout):
		return CodeTimeout
	case isErr(err, Cancelled):
		return CodeCancelled
	case isErr(err, StorageError):
		return CodeStorageError
	case isErr(err, CheckoutFailed):
		return CodeCheckoutError
	default:
		return CodeInternal
	}
}

func isErr(err, target error) bool {
	return errors.Is(err, target)
}
