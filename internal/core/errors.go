package core

import "errors"

// Failure taxonomy for the pipeline. Stage implementations wrap one of
// these sentinels so the orchestrator can classify without knowing the
// backend: errors.Is(err, ErrTransient) decides retry, Reason(err) names
// the class on the dead-letter path.
var (
	// ErrValidation marks a malformed request. Fatal, dead-letter immediately.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a remote path that does not exist. Fatal.
	ErrNotFound = errors.New("not found")

	// ErrSizeLimit marks a payload exceeding the configured fetch cap. Fatal.
	ErrSizeLimit = errors.New("size limit exceeded")

	// ErrTransient marks network/timeout faults on fetch, embed or index.
	// Retried with bounded backoff.
	ErrTransient = errors.New("transient error")

	// ErrCorruptDocument marks an irrecoverable parse failure. Fatal.
	ErrCorruptDocument = errors.New("corrupt document")

	// ErrUnsupportedKind marks a document kind with no extractor variant. Fatal.
	ErrUnsupportedKind = errors.New("unsupported document kind")

	// ErrProvider marks a malformed embedding-provider response.
	// Retried up to the ceiling, then fatal.
	ErrProvider = errors.New("provider error")

	// ErrSchema marks an index mapping mismatch. Fatal, never retried:
	// retrying cannot fix a schema conflict.
	ErrSchema = errors.New("schema error")
)

// IsRetryable reports whether the orchestrator may re-enter the failing
// stage for this error.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrProvider)
}

// Reason maps an error to the classification recorded on dead-lettered
// requests and in pipeline state.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrSizeLimit):
		return "SizeLimitExceeded"
	case errors.Is(err, ErrCorruptDocument):
		return "CorruptDocument"
	case errors.Is(err, ErrUnsupportedKind):
		return "UnsupportedKind"
	case errors.Is(err, ErrSchema):
		return "SchemaError"
	case errors.Is(err, ErrProvider):
		return "ProviderError"
	case errors.Is(err, ErrTransient):
		return "TransientError"
	default:
		return "InternalError"
	}
}
