// Package apperr defines the error taxonomy shared by the registry, the asset
// cache, node registration and the HTTP boundary.
//
// Every error carries a stable Kind so callers branch on the category rather
// than on message text. The boundary maps a Kind to a transport status through
// HTTPStatus, a plain lookup table.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable category of an Error.
type Kind string

const (
	KindSessionNotFound       Kind = "session not found"
	KindSessionCreationFailed Kind = "failed creating a session"
	KindAssetExtractionFailed Kind = "asset extraction failed"
	KindUnsupportedAction     Kind = "unsupported action"
	KindRegistrationFailed    Kind = "registration failed"
	KindBadRequest            Kind = "bad request"
	KindInternal              Kind = "internal error"
)

// Error is a tagged error variant.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// SessionNotFound reports a lookup miss for id.
func SessionNotFound(id string) *Error {
	return &Error{Kind: KindSessionNotFound, Message: fmt.Sprintf("cannot find session with id %s", id)}
}

// SessionCreationFailed wraps the cause of a failed create sequence.
func SessionCreationFailed(err error) *Error {
	return &Error{Kind: KindSessionCreationFailed, Message: "failed creating a session", Err: err}
}

// AssetExtractionFailed wraps a decode, write or unpack failure for checksum.
func AssetExtractionFailed(checksum string, err error) *Error {
	msg := "asset extraction failed"
	if checksum != "" {
		msg = fmt.Sprintf("asset %s extraction failed", checksum)
	}
	return &Error{Kind: KindAssetExtractionFailed, Message: msg, Err: err}
}

// UnsupportedAction reports a feature that is gated off.
func UnsupportedAction(action string) *Error {
	return &Error{Kind: KindUnsupportedAction, Message: fmt.Sprintf("unsupported action: %s", action)}
}

// RegistrationFailed wraps the last transport failure once retries are exhausted.
func RegistrationFailed(op string, attempts int, err error) *Error {
	return &Error{
		Kind:    KindRegistrationFailed,
		Message: fmt.Sprintf("node %s failed after %d attempts", op, attempts),
		Err:     err,
	}
}

// BadRequest reports a malformed request.
func BadRequest(msg string, err error) *Error {
	return &Error{Kind: KindBadRequest, Message: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

var statusByKind = map[Kind]int{
	KindSessionNotFound:       http.StatusNotFound,
	KindSessionCreationFailed: http.StatusInternalServerError,
	KindAssetExtractionFailed: http.StatusInternalServerError,
	KindUnsupportedAction:     http.StatusNotImplemented,
	KindRegistrationFailed:    http.StatusInternalServerError,
	KindBadRequest:            http.StatusBadRequest,
	KindInternal:              http.StatusInternalServerError,
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Response is the JSON error body written at the HTTP boundary.
type Response struct {
	Error   Kind   `json:"error"`
	Message string `json:"message"`
}

// NewResponse builds the boundary body for err.
func NewResponse(err error) Response {
	return Response{Error: KindOf(err), Message: err.Error()}
}
