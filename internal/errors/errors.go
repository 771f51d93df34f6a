package errors

import "fmt"

// AmanError is the structured error type used across agent-brain.
// Legacy callers construct it from a string code (New/Wrap/ConfigError/...);
// the retrieval/indexing/lifecycle core constructs it from a closed Kind
// (NewKind/WrapKind/InvalidConfig/StorageUnavailable/...). Both populate
// the same fields, so downstream consumers (logging, HTTP mapping, retry)
// only ever need to look at Category/Severity/Retryable/Kind.
type AmanError struct {
	// Kind is set for errors constructed via the Kind-based API; empty
	// for legacy code-based errors.
	Kind Kind

	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint, surfaced over HTTP as "hint".
	Suggestion string
}

// Error implements the error interface.
func (e *AmanError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AmanError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *AmanError) Is(target error) bool {
	if t, ok := target.(*AmanError); ok {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the status code the HTTP shell should use for this
// error (spec §6/§7). Zero means no single status applies.
func (e *AmanError) HTTPStatus() int {
	if e.Kind == "" {
		return 500
	}
	return metaForKind(e.Kind).httpStatus
}

// WithDetail adds a key-value detail to the error.
func (e *AmanError) WithDetail(key, value string) *AmanError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion / hint.
func (e *AmanError) WithSuggestion(suggestion string) *AmanError {
	e.Suggestion = suggestion
	return e
}

// New creates a legacy AmanError from a string code. Category, severity,
// and retryable are derived from the code's leading digit band.
func New(code string, message string, cause error) *AmanError {
	return &AmanError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a legacy AmanError from an existing error.
func Wrap(code string, err error) *AmanError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

func ConfigError(message string, cause error) *AmanError {
	return New(ErrCodeConfigInvalid, message, cause)
}

func IOError(message string, cause error) *AmanError {
	return New(ErrCodeFileNotFound, message, cause)
}

func NetworkError(message string, cause error) *AmanError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

func ValidationError(message string, cause error) *AmanError {
	return New(ErrCodeInvalidInput, message, cause)
}

func InternalError(message string, cause error) *AmanError {
	return New(ErrCodeInternal, message, cause)
}

// --- Kind-based API: the retrieval/indexing/lifecycle core's error taxonomy ---

// NewKind creates an AmanError of the given closed Kind.
func NewKind(kind Kind, message string, cause error) *AmanError {
	m := metaForKind(kind)
	return &AmanError{
		Kind:      kind,
		Code:      m.code,
		Message:   message,
		Category:  m.category,
		Severity:  m.severity,
		Cause:     cause,
		Retryable: m.retryable,
	}
}

// WrapKind creates an AmanError of the given Kind from an existing error.
func WrapKind(kind Kind, err error) *AmanError {
	if err == nil {
		return nil
	}
	return NewKind(kind, err.Error(), err)
}

func InvalidConfig(message string, cause error) *AmanError {
	return NewKind(KindInvalidConfig, message, cause)
}

func InvalidQuery(message string) *AmanError {
	return NewKind(KindInvalidQuery, message, nil)
}

func InvalidFilter(message string) *AmanError {
	return NewKind(KindInvalidFilter, message, nil)
}

func StorageDimensionMismatch(stored, current string) *AmanError {
	return NewKind(KindStorageDimensionMismatch,
		fmt.Sprintf("embedding model/dimension changed: stored=%s current=%s", stored, current), nil).
		WithSuggestion("reset the project or revert the embedding configuration, then re-index")
}

func StorageUnavailable(message string, cause error) *AmanError {
	return NewKind(KindStorageUnavailable, message, cause)
}

func ProviderUnavailable(provider string, cause error) *AmanError {
	return NewKind(KindProviderUnavailable, fmt.Sprintf("provider %q unavailable", provider), cause)
}

func ProviderTimeout(provider string, cause error) *AmanError {
	return NewKind(KindProviderTimeout, fmt.Sprintf("provider %q timed out", provider), cause)
}

func AlreadyRunning(baseURL string) *AmanError {
	return NewKind(KindAlreadyRunning, "an instance is already running for this project", nil).
		WithDetail("base_url", baseURL)
}

func LockHeld(lockPath string) *AmanError {
	return NewKind(KindLockHeld, "state directory lock is held by another process", nil).
		WithDetail("lock_path", lockPath)
}

func GraphDisabled() *AmanError {
	return NewKind(KindGraphDisabled, "graph mode requested but graph capability is disabled", nil).
		WithSuggestion("enable graph.enabled in the project configuration and re-index")
}

func RerankDisabled() *AmanError {
	return NewKind(KindRerankDisabled, "rerank requested but rerank capability is disabled", nil).
		WithSuggestion("enable rerank.enabled in the project configuration")
}

func DeadlineExceeded(message string) *AmanError {
	return NewKind(KindDeadlineExceeded, message, nil)
}

func Cancelled(message string) *AmanError {
	return NewKind(KindCancelled, message, nil)
}

func InterruptedByRestart() *AmanError {
	return NewKind(KindInterruptedByRestart, "job was running when the instance restarted", nil)
}

func NotFoundKind(message string) *AmanError {
	return NewKind(KindNotFound, message, nil)
}

func Internal(message string, cause error) *AmanError {
	return NewKind(KindInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AmanError); ok {
		return ae.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AmanError); ok {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an AmanError.
func GetCode(err error) string {
	if ae, ok := err.(*AmanError); ok {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category from an AmanError.
func GetCategory(err error) Category {
	if ae, ok := err.(*AmanError); ok {
		return ae.Category
	}
	return ""
}

// GetKind extracts the Kind from an AmanError ("" if not Kind-based).
func GetKind(err error) Kind {
	if ae, ok := err.(*AmanError); ok {
		return ae.Kind
	}
	return ""
}

// Body is the wire shape of an error response: {error_kind, message, hint}.
type Body struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
}

// ToBody converts err into the HTTP error body shape from spec §6/§7.
func ToBody(err error) Body {
	ae, ok := err.(*AmanError)
	if !ok {
		return Body{ErrorKind: string(KindInternal), Message: err.Error()}
	}
	kind := ae.Kind
	if kind == "" {
		kind = KindInternal
	}
	return Body{ErrorKind: string(kind), Message: ae.Message, Hint: ae.Suggestion}
}
