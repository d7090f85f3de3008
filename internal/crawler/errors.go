package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ingestion pipeline. Typed errors below wrap them so
// callers can match with errors.Is and still recover details with errors.As.
var (
	ErrFetch                = errors.New("fetch failed")
	ErrBlocked              = errors.New("blocked by site")
	ErrEmptyPage            = errors.New("empty page")
	ErrExhaustedRetries     = errors.New("retries exhausted")
	ErrParse                = errors.New("parse failed")
	ErrMissingRequiredField = fmt.Errorf("%w: missing required field", ErrParse)
	ErrDateParse            = fmt.Errorf("%w: unrecognised date", ErrParse)
	ErrDuplicateQuestion    = errors.New("question already stored")
	ErrStorageInvariant     = errors.New("storage invariant violated")
	ErrConfiguration        = errors.New("invalid configuration")
)

// FetchError reports a transport failure or a non-retryable HTTP status.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s): %v", e.URL, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *FetchError) Unwrap() []error {
	return []error{ErrFetch, e.Err}
}

// BlockKind names the anti-bot condition reported by the site.
type BlockKind string

// Block conditions recognised from the page title.
const (
	BlockCaptcha BlockKind = "captcha"
	BlockBan     BlockKind = "temporary_ban"
)

// BlockedError reports that the site served a captcha or ban page.
type BlockedError struct {
	URL  string
	Kind BlockKind
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("fetch %s: blocked (%s)", e.URL, e.Kind)
}

// Unwrap returns ErrBlocked.
func (e *BlockedError) Unwrap() error {
	return ErrBlocked
}

// ExhaustedRetriesError is returned when the optional block retry ceiling is hit.
type ExhaustedRetriesError struct {
	URL      string
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("fetch %s: gave up after %d blocked attempt(s): %v", e.URL, e.Attempts, e.Last)
}

// Unwrap exposes the sentinel and the last block error.
func (e *ExhaustedRetriesError) Unwrap() []error {
	return []error{ErrExhaustedRetries, e.Last}
}

// MissingRequiredFieldError names a mandatory field that could not be extracted.
type MissingRequiredFieldError struct {
	Field  string
	Source string
}

func (e *MissingRequiredFieldError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("missing required field %q", e.Field)
	}
	return fmt.Sprintf("missing required field %q in %s", e.Field, e.Source)
}

// Unwrap returns ErrMissingRequiredField.
func (e *MissingRequiredFieldError) Unwrap() error {
	return ErrMissingRequiredField
}

// DateParseError carries the raw string the date normalizer could not read.
type DateParseError struct {
	Raw string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("unrecognised date %q", e.Raw)
}

// Unwrap returns ErrDateParse.
func (e *DateParseError) Unwrap() error {
	return ErrDateParse
}

// ConfigurationError reports an invalid setting or flag combination.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Reason)
}

// Unwrap returns ErrConfiguration.
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}
