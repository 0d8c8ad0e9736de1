package webglue

import (
	"errors"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Log keys and values used by server and client
const (
	evt     = "event"
	msg     = "message"
	react   = "reaction"
	msgRecv = "message received"
	msgSend = "message send"
)

// TimeoutInterval is the interval one party will consider the other party disconnected
// if it hasn't received a message (including keep-alive) in it.
// The recommended value is double the KeepAliveInterval value.
// Default is 30 seconds.
func TimeoutInterval(timeout time.Duration) func(Party) error {
	return func(p Party) error {
		if timeout <= 0 {
			return errors.New("unsupported TimeoutInterval <= 0")
		}
		p.settings().timeout = timeout
		return nil
	}
}

// HandshakeTimeout is the interval in which the other party has to complete the protocol handshake.
// Default is 15 seconds.
func HandshakeTimeout(timeout time.Duration) func(Party) error {
	return func(p Party) error {
		p.settings().handshakeTimeout = timeout
		return nil
	}
}

// KeepAliveInterval is the interval if the party hasn't sent a message within,
// a ping message is sent automatically to keep the connection open.
// When changing KeepAliveInterval, change the TimeoutInterval setting on the other party.
// Default is 5 seconds.
func KeepAliveInterval(interval time.Duration) func(Party) error {
	return func(p Party) error {
		if interval <= 0 {
			return errors.New("unsupported KeepAliveInterval <= 0")
		}
		p.settings().keepAliveInterval = interval
		return nil
	}
}

// EnableDetailedErrors - if true, the stack of a panicking function is sent to the client
// together with the panic message.
// The default is false, as stacks can contain sensitive information.
func EnableDetailedErrors(enable bool) func(Party) error {
	return func(p Party) error {
		p.settings().enableDetailedErrors = enable
		return nil
	}
}

// InsecureSkipVerify disables the websocket Accepts origin verification behaviour which is used to avoid same origin strategy.
// See https://pkg.go.dev/github.com/coder/websocket#AcceptOptions
func InsecureSkipVerify(skip bool) func(Party) error {
	return func(p Party) error {
		p.settings().insecureSkipVerify = skip
		return nil
	}
}

// AllowOriginPatterns lists the host patterns for authorized origins which is used for avoid same origin strategy.
// See https://pkg.go.dev/github.com/coder/websocket#AcceptOptions
func AllowOriginPatterns(origins []string) func(Party) error {
	return func(p Party) error {
		p.settings().originPatterns = origins
		return nil
	}
}

// MaximumReceiveMessageSize is the maximum size in bytes of a single incoming websocket message.
// Default is 32KB
func MaximumReceiveMessageSize(size uint) func(Party) error {
	return func(p Party) error {
		if size == 0 {
			return errors.New("unsupported MaximumReceiveMessageSize 0")
		}
		p.settings().maximumReceiveMessageSize = size
		return nil
	}
}

// StructuredLogger is the simplest logging interface for structured logging.
// See github.com/go-kit/log
type StructuredLogger interface {
	Log(keyVals ...interface{}) error
}

// Logger sets the logger used by the party to log info events.
// If debug is true, debug log event are generated, too
func Logger(logger StructuredLogger, debug bool) func(Party) error {
	return func(p Party) error {
		i, d := buildInfoDebugLogger(logger, debug)
		p.setLoggers(i, d)
		return nil
	}
}

func buildInfoDebugLogger(logger log.Logger, debug bool) (log.Logger, log.Logger) {
	if debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return level.Info(logger), log.With(level.Debug(logger), "caller", log.DefaultCaller)
}
