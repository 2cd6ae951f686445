package extract

import (
	"errors"
	"fmt"
)

// Kind categorizes extraction errors so callers can decide policy: which
// failures mark a document as errored, which degrade to warnings, and which
// need a dependency-installation hint shown to the user.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound means the input file does not exist.
	KindNotFound
	// KindUnreadableSource means the file exists but cannot be parsed
	// (corrupt, locked or password protected).
	KindUnreadableSource
	// KindRecognitionUnavailable means a required external recognition
	// dependency is missing from the system.
	KindRecognitionUnavailable
	// KindRecognitionFailed means the dependency is present but errored on
	// this specific input.
	KindRecognitionFailed
	// KindInvalidCoordinates means a field or table mapping carries a
	// malformed rectangle.
	KindInvalidCoordinates
	// KindInvalidTemplate means extraction was invoked without a usable
	// template.
	KindInvalidTemplate
	// KindTotalFailure means every field and table attempt came up empty.
	KindTotalFailure
)

// String returns the log-facing name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindUnreadableSource:
		return "UNREADABLE_SOURCE"
	case KindRecognitionUnavailable:
		return "RECOGNITION_UNAVAILABLE"
	case KindRecognitionFailed:
		return "RECOGNITION_FAILED"
	case KindInvalidCoordinates:
		return "INVALID_COORDINATES"
	case KindInvalidTemplate:
		return "INVALID_TEMPLATE"
	case KindTotalFailure:
		return "TOTAL_EXTRACTION_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// Error carries both a technical message for logs and a plain-language
// explanation suitable for direct display, including remediation text for
// missing-dependency cases.
type Error struct {
	Kind     Kind
	Message  string
	UserHint string
	Path     string
	cause    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// UserMessage returns the display-facing explanation, falling back to a
// generic phrasing per kind when no specific hint was attached.
func (e *Error) UserMessage() string {
	if e.UserHint != "" {
		return e.UserHint
	}
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("The file %s could not be found. It may have been moved or deleted.", e.Path)
	case KindUnreadableSource:
		return fmt.Sprintf("The file %s could not be read. It may be corrupt, locked or password protected.", e.Path)
	case KindRecognitionUnavailable:
		return "Text recognition is not available on this system. " + installHint
	case KindRecognitionFailed:
		return fmt.Sprintf("Text recognition failed for %s. The page may be blank or the scan quality too low.", e.Path)
	case KindInvalidCoordinates:
		return "A mapping in the template has invalid coordinates. Re-draw the affected area in the template editor."
	case KindInvalidTemplate:
		return "No usable template was provided for this cluster. Define one against the cluster's reference document first."
	case KindTotalFailure:
		return fmt.Sprintf("No fields or tables could be extracted from %s. The document may not match this cluster's template.", e.Path)
	default:
		return e.Message
	}
}

// installHint names the external binaries recognition depends on. Shown
// verbatim to users, so it stays concrete.
const installHint = "Install tesseract-ocr (with the swe and eng language packs) and poppler-utils, then retry."

func newError(kind Kind, path, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Path: path, cause: cause}
}

// NotFoundError reports a missing input file.
func NotFoundError(path string) *Error {
	return newError(KindNotFound, path, "input file does not exist", nil)
}

// UnreadableError reports a file that exists but cannot be parsed.
func UnreadableError(path string, cause error) *Error {
	return newError(KindUnreadableSource, path, "cannot read source document", cause)
}

// RecognitionUnavailableError reports a missing external dependency.
func RecognitionUnavailableError(dependency string, cause error) *Error {
	e := newError(KindRecognitionUnavailable, "", fmt.Sprintf("recognition dependency %q is not installed", dependency), cause)
	e.UserHint = fmt.Sprintf("The %s program is not installed, so scanned pages cannot be read. %s", dependency, installHint)
	return e
}

// RecognitionFailedError reports a recognition run that errored.
func RecognitionFailedError(path string, cause error) *Error {
	return newError(KindRecognitionFailed, path, "text recognition failed", cause)
}

// InvalidCoordinatesError reports a malformed mapping rectangle.
func InvalidCoordinatesError(subject string, cause error) *Error {
	return newError(KindInvalidCoordinates, "", fmt.Sprintf("invalid coordinates on %s", subject), cause)
}

// InvalidTemplateError reports a nil template passed to extraction.
func InvalidTemplateError() *Error {
	return newError(KindInvalidTemplate, "", "no template provided", nil)
}

// TotalFailureError reports that extraction produced nothing at all.
func TotalFailureError(path string) *Error {
	return newError(KindTotalFailure, path, "no fields or tables could be extracted", nil)
}

// KindOf returns the kind of an extraction error, or KindUnknown for
// foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsDocumentFatal reports whether an error should mark the whole document
// as errored rather than degrade to a warning.
func IsDocumentFatal(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindUnreadableSource, KindInvalidTemplate, KindTotalFailure:
		return true
	}
	return false
}
