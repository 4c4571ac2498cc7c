// Package errtype defines the closed set of error kinds that flow across
// the message pipeline, the device capability layer and the device manager.
package errtype

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the error categories a client or operator needs to branch
// on. It is never extended dynamically; new kinds are new consts here.
type Kind string

const (
	KindInit                  Kind = "Init"
	KindPing                  Kind = "Ping"
	KindMessage               Kind = "Message"
	KindDeviceNotAvailable    Kind = "DeviceNotAvailable"
	KindDeviceFeatureMismatch Kind = "DeviceFeatureMismatch"
	KindDeviceStepRange       Kind = "DeviceStepRange"
	KindDeviceProtocol        Kind = "DeviceProtocol"
	KindDeviceCommunication   Kind = "DeviceCommunication"
	KindConnector             Kind = "Connector"
	KindUnknown               Kind = "Unknown"
)

// ErrorCode is the wire-level code carried on an Error message (spec §6.1).
// Several device-level Kinds collapse onto the single wire code "Device";
// the finer Kind is only used internally for logging and Go-level branching.
type ErrorCode string

const (
	CodeUnknown ErrorCode = "Unknown"
	CodeInit    ErrorCode = "Init"
	CodePing    ErrorCode = "Ping"
	CodeMessage ErrorCode = "Message"
	CodeDevice  ErrorCode = "Device"
)

// Error is the concrete Go error type for every failure originating in the
// message, device or connector layers. It always carries a Kind and wraps
// the underlying cause via github.com/pkg/errors so call sites can still
// errors.Cause() through to the root.
type Error struct {
	Kind  Kind
	cause error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, cause: errors.New(message)}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, cause: fmt.Errorf(format, args...)}
}

func Wrap(kind Kind, cause error, message string) *Error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, cause: errors.Wrap(cause, message)}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.cause.Error())
}

func (e *Error) Cause() error { return e.cause }
func (e *Error) Unwrap() error { return e.cause }

// Code maps the internal Kind to the wire-level ErrorCode from spec §6.1.
func (e *Error) Code() ErrorCode {
	switch e.Kind {
	case KindInit:
		return CodeInit
	case KindPing:
		return CodePing
	case KindMessage:
		return CodeMessage
	case KindDeviceNotAvailable, KindDeviceFeatureMismatch, KindDeviceStepRange,
		KindDeviceProtocol, KindDeviceCommunication:
		return CodeDevice
	case KindConnector:
		return CodeMessage
	default:
		return CodeUnknown
	}
}

// KindOf extracts the Kind from an error if it is (or wraps) an *Error,
// returning KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf extracts the wire-level ErrorCode from an error if it is (or
// wraps) an *Error, returning CodeUnknown otherwise. internal/handler uses
// this to stamp every Error reply's ErrorCode regardless of whether the
// failure originated in this package or bubbled up from pkg/message.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return CodeUnknown
}

// NewDeviceNotAvailable is a convenience constructor mirroring the teacher's
// NewBadRequestError/NewServerError helpers in internal/common.
func NewDeviceNotAvailable(deviceIndex uint32) *Error {
	return Newf(KindDeviceNotAvailable, "device index %d is not available", deviceIndex)
}

func NewDeviceFeatureMismatch(deviceIndex, featureIndex uint32, reason string) *Error {
	return Newf(KindDeviceFeatureMismatch, "device %d feature %d: %s", deviceIndex, featureIndex, reason)
}

func NewDeviceStepRange(deviceIndex, featureIndex uint32, value, lo, hi int32) *Error {
	return Newf(KindDeviceStepRange, "device %d feature %d: value %d outside step limit [%d,%d]", deviceIndex, featureIndex, value, lo, hi)
}

func NewMessageNotSupported(msgType string, version int) *Error {
	return Newf(KindMessage, "message %s is not supported at spec version %d", msgType, version)
}
