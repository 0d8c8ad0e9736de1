package webglue

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
)

// WithConnection sets the Connection of the Client. A client with a fixed
// connection can not reconnect, use WithConnector for that.
func WithConnection(connection Connection) func(Party) error {
	return func(p Party) error {
		if c, ok := p.(*client); ok {
			if c.connector != nil {
				return errors.New("options WithConnection and WithConnector can not be used together")
			}
			c.conn = connection
			return nil
		}
		return errors.New("option WithConnection is client only")
	}
}

// WithConnector sets the function which opens a new Connection.
// The client calls it on Start and whenever the connection was lost.
func WithConnector(connectionFactory func() (Connection, error)) func(Party) error {
	return func(p Party) error {
		if c, ok := p.(*client); ok {
			if c.conn != nil {
				return errors.New("options WithConnection and WithConnector can not be used together")
			}
			c.connector = connectionFactory
			return nil
		}
		return errors.New("option WithConnector is client only")
	}
}

// WithBackoff sets the backoff strategy for reconnecting.
// Default is backoff.NewExponentialBackOff
func WithBackoff(backoffFactory func() backoff.BackOff) func(Party) error {
	return func(p Party) error {
		if c, ok := p.(*client); ok {
			c.backoffFactory = backoffFactory
			return nil
		}
		return errors.New("option WithBackoff is client only")
	}
}

// TransferFormat sets the transfer format used on the transport. Allowed values are "Text" and "Binary"
func TransferFormat(format string) func(Party) error {
	return func(p Party) error {
		if c, ok := p.(*client); ok {
			switch format {
			case "Text":
				c.format = "json"
			case "Binary":
				c.format = "messagepack"
			default:
				return fmt.Errorf("invalid transferformat %v", format)
			}
			return nil
		}
		return errors.New("option TransferFormat is client only")
	}
}

// ProtocolVersion is the version the client sends with discover. Default is "1.1".
func ProtocolVersion(version string) func(Party) error {
	return func(p Party) error {
		if c, ok := p.(*client); ok {
			c.version = version
			return nil
		}
		return errors.New("option ProtocolVersion is client only")
	}
}

// DiscoveryTimeout is the time the client waits for the answer to discover.
// Default is 15 seconds.
func DiscoveryTimeout(timeout time.Duration) func(Party) error {
	return func(p Party) error {
		if c, ok := p.(*client); ok {
			c.discoveryTimeout = timeout
			return nil
		}
		return errors.New("option DiscoveryTimeout is client only")
	}
}

// HeartbeatInterval is the interval of the local Heartbeat event. Default is one second.
func HeartbeatInterval(interval time.Duration) func(Party) error {
	return func(p Party) error {
		if c, ok := p.(*client); ok {
			if interval <= 0 {
				return errors.New("unsupported HeartbeatInterval <= 0")
			}
			c.heartbeatInterval = interval
			return nil
		}
		return errors.New("option HeartbeatInterval is client only")
	}
}

// WithClock sets the clock for heartbeat and discovery timeout
func WithClock(clk clock.Clock) func(Party) error {
	return func(p Party) error {
		if c, ok := p.(*client); ok {
			c.clock = clk
			return nil
		}
		return errors.New("option WithClock is client only")
	}
}

// OnConnect is called after every successful discovery, including the ones after reconnects
func OnConnect(onConnect func(c Client)) func(Party) error {
	return func(p Party) error {
		if c, ok := p.(*client); ok {
			c.onConnect = onConnect
			return nil
		}
		return errors.New("option OnConnect is client only")
	}
}
