package webglue

import "errors"

var (
	// ErrNotDiscovered is returned for calls before the client completed discovery
	ErrNotDiscovered = errors.New("webglue: server not discovered")
	// ErrDiscoveryTimeout is returned by Client.Start when the server does not answer discover in time
	ErrDiscoveryTimeout = errors.New("webglue: discovery timeout")
	// ErrUnsupportedVersion is returned by Client.Start when the server rejects the protocol version
	ErrUnsupportedVersion = errors.New("webglue: unsupported protocol version")
	// ErrLoopEnded is the result of calls which were pending when the connection ended
	ErrLoopEnded = errors.New("webglue: message loop ended")
	// ErrNoConnection is returned by Client.Start when neither WithConnection nor WithConnector was given
	ErrNoConnection = errors.New("webglue: neither WithConnection nor WithConnector option was given")
)

// ErrorKind classifies a failed call
type ErrorKind string

// ErrorKind values
const (
	KindUnknownAPI          ErrorKind = "UnknownApi"
	KindUnknownFunction     ErrorKind = "UnknownFunction"
	KindCallCheckRejected   ErrorKind = "CallCheckRejected"
	KindFunctionFailed      ErrorKind = "FunctionThrew"
	KindInvalidArguments    ErrorKind = "InvalidArguments"
	KindEventFilterRejected ErrorKind = "EventFilterRejected"
)

// CallError is a failed call. Kind is only transmitted to clients which
// discovered with protocol version 1.1 or later, older clients get the message only.
type CallError struct {
	Kind    ErrorKind
	Message string
}

func (e *CallError) Error() string {
	return e.Message
}

// Is makes errors.Is match any *CallError with the same Kind
func (e *CallError) Is(target error) bool {
	t, ok := target.(*CallError)
	return ok && t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}
