package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	pkgerrors "github.com/pkg/errors"

	transport "github.com/thermolab/thermocal/internal/client"
	"github.com/thermolab/thermocal/pkg/calibration"
)

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	// ErrCommandRejected is returned when the controller refuses a command,
	// e.g. an empty plan or a start while a run is already active.
	ErrCommandRejected = errors.New("command rejected by controller")

	// ErrTransport is returned when the controller cannot be reached or the
	// connection drops during a command or subscription.
	ErrTransport = errors.New("controller unreachable")

	// ErrMalformedEvent is used for telemetry payloads that fail validation.
	// Such events are dropped; the error is only ever logged.
	ErrMalformedEvent = errors.New("malformed telemetry event")

	// ErrUnknown covers every failure not matching the kinds above.
	ErrUnknown = errors.New("unknown calibration error")
)

var (
	// ErrDaemonNotRunning is returned when the controller daemon is not running.
	// It is a transport error.
	ErrDaemonNotRunning = transport.ErrDaemonNotRunning

	// ErrPermissionDenied is returned when the user cannot open the controller
	// socket. It is a transport error.
	ErrPermissionDenied = transport.ErrPermissionDenied
)

// Error is a classified controller error.
type Error struct {
	kind    error
	message string
	cause   error
}

func (e *Error) Error() string { return e.message }

// Is matches the error kind.
func (e *Error) Is(target error) bool { return target == e.kind }

func (e *Error) Unwrap() error { return e.cause }

func newError(kind error, message string, cause error) *Error {
	if message == "" {
		message = kind.Error()
	}
	return &Error{kind: kind, message: message, cause: cause}
}

// classify converts a raw transport error into one of the error kinds.
func classify(err error, action string) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}

	var se *transport.StatusError
	switch {
	case errors.As(err, &se):
		body := responseMessage(se.Body)
		if se.StatusCode >= http.StatusBadRequest && se.StatusCode < http.StatusInternalServerError {
			if body == "" {
				body = ErrCommandRejected.Error()
			}
			return newError(ErrCommandRejected, body, err)
		}
		return newError(ErrUnknown, "", pkgerrors.Wrapf(err, "failed to %s", action))
	case errors.Is(err, calibration.ErrEmptyPlan), errors.Is(err, calibration.ErrInvalidStep):
		return newError(ErrCommandRejected, err.Error(), err)
	default:
		// Dial failures, resets, cancellation and timeouts all mean the
		// command never got an answer.
		return newError(ErrTransport, pkgerrors.Wrapf(err, "failed to %s", action).Error(), err)
	}
}

// ErrorMessage converts any error returned by a command into the message
// shown to the operator.
func ErrorMessage(err error) string {
	if err == nil {
		return ErrUnknown.Error()
	}
	if errors.Is(err, ErrUnknown) {
		return ErrUnknown.Error()
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return ErrUnknown.Error()
	}
	return msg
}

// responseMessage unquotes a JSON string body; anything else is returned trimmed.
func responseMessage(body string) string {
	body = strings.TrimSpace(body)
	var s string
	if err := json.Unmarshal([]byte(body), &s); err == nil {
		return s
	}
	return body
}
