package webglue

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/go-kit/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/philippseith/webglue"

// Server is the webglue server. It serves the functions and events of its modules to the
// connected clients.
//
//	Serve(conn Connection) error
//
// Serve serves the connection until it ends. It can be used to serve connections
// which are not accepted by MapHTTP, e.g. net.Conn connections.
//
//	MapHTTP(routerFactory func() MappableRouter, path string)
//
// MapHTTP maps the websocket endpoint of the server to path.
//
//	Emit(apiName, eventName string, args ...interface{})
//
// Emit sends an event to all connected clients which pass the event filters.
// It does the same as EventSlot.Emit on the slot of the event.
type Server interface {
	Party
	Serve(conn Connection) error
	MapHTTP(routerFactory func() MappableRouter, path string)
	Emit(apiName, eventName string, args ...interface{})
	ConnectionCount() int
	Resources() []string
}

type server struct {
	partyBase
	modules             []Module
	supportedVersions   []string
	eventBufferCapacity uint
	metrics             *Metrics
	tracerProvider      trace.TracerProvider
	registry            *registry
	dispatcher          *dispatcher
	lifetimeManager     *lifetimeManager
	serving             atomic.Bool
}

// NewServer creates a new server. The modules are registered and their event slots
// are bound before NewServer returns.
func NewServer(ctx context.Context, options ...func(Party) error) (Server, error) {
	info, dbg := buildInfoDebugLogger(log.NewLogfmtLogger(os.Stderr), false)
	s := &server{
		partyBase:           newPartyBase(ctx, info, dbg),
		supportedVersions:   []string{"1.0", "1.1"},
		eventBufferCapacity: 64,
	}
	for _, option := range options {
		if option != nil {
			if err := option(s); err != nil {
				return nil, err
			}
		}
	}
	if s.tracerProvider == nil {
		s.tracerProvider = otel.GetTracerProvider()
	}
	registry, err := newRegistry(s.modules, s.emit)
	if err != nil {
		return nil, fmt.Errorf("invalid modules: %w", err)
	}
	s.registry = registry
	s.dispatcher = &dispatcher{
		registry:             registry,
		tracer:               s.tracerProvider.Tracer(tracerName),
		metrics:              s.metrics,
		enableDetailedErrors: s.config.enableDetailedErrors,
	}
	lInfo, _ := s.prefixLoggers("")
	s.lifetimeManager = newLifetimeManager(s.eventBufferCapacity, registry.filters, s.metrics, lInfo)
	go func() {
		<-s.ctx.Done()
		s.serving.Store(false)
	}()
	return s, nil
}

// Serve serves the connection. It returns when the connection ends.
func (s *server) Serve(conn Connection) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	s.serving.Store(true)
	info, _ := s.prefixLoggers(conn.ConnectionID())
	protocol, remainBuf, err := serverHandshake(s.ctx, conn, s.config.handshakeTimeout, info)
	if err != nil {
		return err
	}
	return newLoop(s, conn, protocol, remainBuf).Run(nil)
}

func (s *server) Emit(apiName, eventName string, args ...interface{}) {
	if args == nil {
		args = make([]interface{}, 0)
	}
	s.emit(apiName, eventName, args)
}

func (s *server) emit(apiName, eventName string, args []interface{}) {
	if !s.serving.Load() || s.ctx.Err() != nil {
		return
	}
	s.lifetimeManager.Broadcast(Emission{APIName: apiName, EventName: eventName, Args: args})
}

func (s *server) ConnectionCount() int {
	return s.lifetimeManager.Count()
}

func (s *server) Resources() []string {
	return append([]string(nil), s.registry.resources...)
}

func (s *server) onConnected(l *loop) {
	_ = l.info.Log(evt, "connected")
	s.lifetimeManager.OnConnected(l)
}

func (s *server) onDisconnected(l *loop) {
	_ = l.info.Log(evt, "disconnected")
	s.lifetimeManager.OnDisconnected(l)
}

func (s *server) handleEmit(l *loop, message emitMessage) {
	switch message.Name {
	case emitDiscover:
		s.handleDiscover(l, message)
	case emitCall:
		// functions might take a long time, don't block the loop
		go s.handleCall(l, message)
	default:
		_ = l.info.Log(evt, msgRecv, "error", "unknown message name", msg, fmtMsg(message), react, "ignore")
	}
}

func (s *server) handleDiscover(l *loop, message emitMessage) {
	var version string
	if len(message.Arguments) > 0 {
		if err := l.protocol.UnmarshalArgument(message.Arguments[0], &version); err != nil {
			_ = l.info.Log(evt, emitDiscover, "error", err)
		}
	}
	payload := s.registry.discovery
	if s.supportsVersion(version) {
		l.state.setDiscovered(version)
		_ = l.dbg.Log(evt, emitDiscover, "version", version)
	} else {
		_ = l.info.Log(evt, emitDiscover, "version", version, "error", "unsupported version", react, "send error")
		payload = discoveryPayload{
			Events: map[string][]string{},
			API:    map[string]map[string]functionRef{},
			Error:  fmt.Sprintf("unsupported protocol version %q, supported are %v", version, s.supportedVersions),
		}
	}
	if message.AckID != "" {
		sendMessageAndLog(func() (interface{}, error) { return l.socket.Ack(message.AckID, payload) }, l.info)
	}
}

func (s *server) supportsVersion(version string) bool {
	for _, v := range s.supportedVersions {
		if v == version {
			return true
		}
	}
	return false
}

func (s *server) handleCall(l *loop, message emitMessage) {
	var call callEnvelope
	var reply callReply
	if len(message.Arguments) == 0 {
		reply = failedReply(&CallError{Kind: KindInvalidArguments, Message: "missing call envelope"}, l.state.Version())
	} else if err := l.protocol.UnmarshalArgument(message.Arguments[0], &call); err != nil {
		reply = failedReply(&CallError{Kind: KindInvalidArguments, Message: err.Error()}, l.state.Version())
	} else if result, callErr := s.dispatcher.dispatch(l.ctx, l, call); callErr != nil {
		reply = failedReply(callErr, l.state.Version())
	} else {
		reply = callReply{Result: result}
	}
	// No ack id, no reply
	if message.AckID != "" {
		sendMessageAndLog(func() (interface{}, error) { return l.socket.Ack(message.AckID, reply) }, l.info)
	}
}

// failedReply carries the kind only for clients which know about it
func failedReply(callErr *CallError, version string) callReply {
	reply := callReply{Error: callErr.Message, failed: true}
	if version != "" && version != "1.0" {
		reply.Kind = string(callErr.Kind)
	}
	return reply
}

func (s *server) allowReconnect() bool {
	// Clients should reconnect when the server ends a connection
	return true
}

func (s *server) prefixLoggers(connectionID string) (info StructuredLogger, debug StructuredLogger) {
	return log.WithPrefix(s.info, "ts", log.DefaultTimestampUTC,
			"class", "Server",
			"connection", connectionID),
		log.WithPrefix(s.dbg, "ts", log.DefaultTimestampUTC,
			"class", "Server",
			"connection", connectionID)
}
