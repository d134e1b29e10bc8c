package controller

import "errors"

// Errors returned by controller handles. Check with errors.Is().
var (
	// ErrConnection is returned when the controller cannot be reached,
	// including when its gateway does not answer in time.
	ErrConnection = errors.New("controller: connection failed")

	// ErrAuth is returned when the controller rejects the credential.
	ErrAuth = errors.New("controller: authentication failed")

	// ErrTimeout is returned alongside ErrConnection when a request expires.
	ErrTimeout = errors.New("controller: request timed out")

	// ErrRejected is returned when the gateway answers with any other error.
	ErrRejected = errors.New("controller: request rejected")

	// ErrNotInitialised is returned by commands issued before Init.
	ErrNotInitialised = errors.New("controller: handle not initialised")

	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("controller: handle closed")
)

// Gateway error codes carried in ResponseError.Code.
const (
	CodeAuthFailed        = "AUTH_FAILED"
	CodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	CodeUnsupported       = "UNSUPPORTED"
)
