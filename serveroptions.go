package webglue

import (
	"errors"

	"go.opentelemetry.io/otel/trace"
)

// Modules adds modules to the server. Options are applied in order, so
// modules from later options are registered after the modules of earlier ones.
func Modules(modules ...Module) func(Party) error {
	return func(p Party) error {
		if s, ok := p.(*server); ok {
			s.modules = append(s.modules, modules...)
			return nil
		}
		return errors.New("option Modules is server only")
	}
}

// SupportedVersions sets the protocol versions the server accepts in discover.
// Clients with other versions get an error instead of the discovery payload.
// Default is "1.0" and "1.1". Version 1.1 adds the error kind to failed call replies.
func SupportedVersions(versions ...string) func(Party) error {
	return func(p Party) error {
		if s, ok := p.(*server); ok {
			if len(versions) == 0 {
				return errors.New("SupportedVersions needs at least one version")
			}
			s.supportedVersions = versions
			return nil
		}
		return errors.New("option SupportedVersions is server only")
	}
}

// EventBufferCapacity is the number of events buffered per connection.
// When the buffer of a connection is full, further events are dropped for that connection.
// Default is 64.
func EventBufferCapacity(capacity uint) func(Party) error {
	return func(p Party) error {
		if s, ok := p.(*server); ok {
			if capacity == 0 {
				return errors.New("unsupported EventBufferCapacity 0")
			}
			s.eventBufferCapacity = capacity
			return nil
		}
		return errors.New("option EventBufferCapacity is server only")
	}
}

// WithTracerProvider sets the OpenTelemetry TracerProvider for call spans.
// Default is the global TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) func(Party) error {
	return func(p Party) error {
		if s, ok := p.(*server); ok {
			s.tracerProvider = tp
			return nil
		}
		return errors.New("option WithTracerProvider is server only")
	}
}
