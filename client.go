package webglue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-kit/log"
)

// Client is the webglue connection used on the client side.
//
//	Start() error
//
// Start connects to the server and blocks until the server has answered discover.
// A failed discovery is returned as error. If the client has a connector, lost connections
// are reconnected and discovered again.
//
//	Stop() error
//
// Stop ends the connection.
//
//	Context() context.Context
//
// Context returns a Context that is canceled when the client has stopped.
//
//	Invoke(apiName, fncName string, args ...interface{}) <-chan InvokeResult
//
// Invoke calls a server function and returns a channel which will return the InvokeResult.
// Failed calls deliver a *CallError or a client side error in InvokeResult.Error.
//
//	API(apiName string) APIProxy
//
// API returns the proxies of all discovered functions of an API.
//
//	Hook(name string) *Hook
//
// Hook returns the hook for an event, e.g. onChatSaid, or onHeartbeat. Hook never returns nil,
// handlers attached to a name no discovery announced are not called until one does.
type Client interface {
	Party
	Start() error
	Stop() error
	Context() context.Context
	Invoke(apiName, fncName string, args ...interface{}) <-chan InvokeResult
	Call(ctx context.Context, apiName, fncName string, args ...interface{}) (interface{}, error)
	API(apiName string) APIProxy
	Hook(name string) *Hook
	Discovery() Discovery
}

// Proxy calls one server function
type Proxy func(args ...interface{}) <-chan InvokeResult

// APIProxy maps function names to their proxies
type APIProxy map[string]Proxy

// Discovery lists the function names per API and the event names per namespace
// the server advertised. All names are sorted.
type Discovery struct {
	API    map[string][]string
	Events map[string][]string
}

// NewClient builds a new Client. One of the options WithConnection or WithConnector is required.
func NewClient(ctx context.Context, options ...func(Party) error) (Client, error) {
	info, dbg := buildInfoDebugLogger(log.NewLogfmtLogger(os.Stderr), false)
	c := &client{
		partyBase:         newPartyBase(ctx, info, dbg),
		format:            "json",
		version:           "1.1",
		discoveryTimeout:  15 * time.Second,
		heartbeatInterval: time.Second,
		clock:             clock.New(),
		backoffFactory:    func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		router:            newEventRouter(),
		events:            make(chan Emission, 64),
	}
	for _, option := range options {
		if option != nil {
			if err := option(c); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

type client struct {
	partyBase
	conn              Connection
	connector         func() (Connection, error)
	backoffFactory    func() backoff.BackOff
	format            string
	version           string
	discoveryTimeout  time.Duration
	heartbeatInterval time.Duration
	clock             clock.Clock
	onConnect         func(c Client)
	router            *eventRouter
	events            chan Emission
	startOnce         sync.Once
	heartbeatOnce     sync.Once

	mx        sync.RWMutex
	loop      *loop
	proxies   map[string]APIProxy
	hooks     map[string]*Hook
	discovery Discovery
}

type runningLoop struct {
	l    *loop
	done chan error
}

func (c *client) Start() (err error) {
	if c.conn == nil && c.connector == nil {
		return ErrNoConnection
	}
	err = errors.New("client already started")
	c.startOnce.Do(func() {
		err = nil
		go c.dispatchEvents()
		var rl *runningLoop
		if rl, err = c.connect(); err != nil {
			_ = c.info.Log(evt, "start", "error", err)
			c.cancel()
			return
		}
		go c.supervise(rl)
	})
	return err
}

func (c *client) Stop() error {
	c.mx.RLock()
	l := c.loop
	c.mx.RUnlock()
	var err error
	if l != nil {
		_, err = l.socket.Close("", false)
	}
	c.cancel()
	return err
}

func (c *client) Context() context.Context {
	return c.ctx
}

// connect opens a connection, starts its loop and discovers the server
func (c *client) connect() (*runningLoop, error) {
	conn := c.conn
	if c.connector != nil {
		var err error
		if conn, err = c.connector(); err != nil {
			return nil, err
		}
	}
	protocol, remainBuf, err := clientHandshake(c.ctx, conn, c.format, c.config.handshakeTimeout)
	if err != nil {
		return nil, err
	}
	rl := &runningLoop{
		l:    newLoop(c, conn, protocol, remainBuf),
		done: make(chan error, 1),
	}
	started := make(chan struct{})
	go func() { rl.done <- rl.l.Run(started) }()
	<-started
	if err = c.discover(rl.l); err != nil {
		rl.l.Abort()
		<-rl.done
		return nil, err
	}
	return rl, nil
}

func (c *client) discover(l *loop) error {
	id, ackCh := l.acks.newAck()
	if _, err := l.socket.Emit(emitDiscover, id, c.version); err != nil {
		l.acks.deleteAck(id)
		return err
	}
	timer := c.clock.Timer(c.discoveryTimeout)
	defer timer.Stop()
	select {
	case ack, ok := <-ackCh:
		if !ok {
			return ErrLoopEnded
		}
		if len(ack.Arguments) == 0 {
			return errors.New("empty discovery payload")
		}
		var payload discoveryPayload
		if err := l.protocol.UnmarshalArgument(ack.Arguments[0], &payload); err != nil {
			return err
		}
		if payload.Error != "" {
			return fmt.Errorf("%w: %v", ErrUnsupportedVersion, payload.Error)
		}
		c.applyDiscovery(l, payload)
		return nil
	case <-timer.C:
		l.acks.deleteAck(id)
		return fmt.Errorf("%w: no answer after %v", ErrDiscoveryTimeout, c.discoveryTimeout)
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// applyDiscovery rebuilds proxies and hooks from payload
func (c *client) applyDiscovery(l *loop, payload discoveryPayload) {
	apis, events := discoveryNames(payload)
	proxies := make(map[string]APIProxy, len(apis))
	for apiName, fncNames := range apis {
		apiProxy := make(APIProxy, len(fncNames))
		for _, fncName := range fncNames {
			apiProxy[fncName] = func(args ...interface{}) <-chan InvokeResult {
				return c.Invoke(apiName, fncName, args...)
			}
		}
		proxies[apiName] = apiProxy
	}
	hooks := make(map[string]*Hook)
	for apiName, eventNames := range events {
		for _, eventName := range eventNames {
			name := HookName(apiName, eventName)
			hooks[name] = &Hook{name: name, apiName: apiName, eventName: eventName, router: c.router}
		}
	}
	heartbeat := HookName("", heartbeatEvent)
	hooks[heartbeat] = &Hook{name: heartbeat, eventName: heartbeatEvent, router: c.router}

	c.mx.Lock()
	c.loop = l
	c.proxies = proxies
	c.hooks = hooks
	c.discovery = Discovery{API: apis, Events: events}
	c.mx.Unlock()
	_ = l.info.Log(evt, "discovered", "apis", len(apis), "hooks", len(hooks))

	c.heartbeatOnce.Do(func() {
		ticker := c.clock.Ticker(c.heartbeatInterval)
		go c.heartbeat(ticker)
	})
	if c.onConnect != nil {
		c.onConnect(c)
	}
}

// supervise waits for the end of the loop and reconnects if possible
func (c *client) supervise(rl *runningLoop) {
	for {
		err := <-rl.done
		c.mx.Lock()
		if c.loop == rl.l {
			c.loop = nil
		}
		c.mx.Unlock()
		if c.ctx.Err() != nil || c.connector == nil {
			c.cancel()
			return
		}
		_ = c.info.Log(evt, "connection lost", "error", err, react, "reconnect")
		operation := func() error {
			next, err := c.connect()
			if errors.Is(err, ErrUnsupportedVersion) {
				return backoff.Permanent(err)
			}
			rl = next
			return err
		}
		notify := func(err error, d time.Duration) {
			_ = c.info.Log(evt, "reconnect", "error", err, "next", d)
		}
		if err = backoff.RetryNotify(operation, backoff.WithContext(c.backoffFactory(), c.ctx), notify); err != nil {
			_ = c.info.Log(evt, "reconnect", "error", err, react, "stop client")
			c.cancel()
			return
		}
	}
}

func (c *client) heartbeat(ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.pushEvent(c.ctx, Emission{EventName: heartbeatEvent})
		case <-c.ctx.Done():
			return
		}
	}
}

// dispatchEvents calls the handlers of received events and heartbeats, one event after the other
func (c *client) dispatchEvents() {
	for {
		select {
		case e := <-c.events:
			c.router.trigger(HookName(e.APIName, e.EventName), e.Args)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *client) pushEvent(ctx context.Context, e Emission) {
	select {
	case c.events <- e:
	case <-ctx.Done():
	}
}

func (c *client) discoveredLoop() *loop {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.loop
}

func (c *client) Invoke(apiName, fncName string, args ...interface{}) <-chan InvokeResult {
	l := c.discoveredLoop()
	if l == nil {
		return newInvokeResultChan(nil, ErrNotDiscovered)
	}
	if args == nil {
		args = make([]interface{}, 0)
	}
	id, ackCh := l.acks.newAck()
	if _, err := l.socket.Emit(emitCall, id, callEnvelope{API: apiName, Fnc: fncName, Args: args}); err != nil {
		l.acks.deleteAck(id)
		return newInvokeResultChan(nil, err)
	}
	ch := make(chan InvokeResult, 1)
	go func() {
		defer close(ch)
		select {
		case ack, ok := <-ackCh:
			if !ok {
				ch <- InvokeResult{Error: ErrLoopEnded}
				return
			}
			ch <- replyResult(l.protocol, ack)
		case <-c.ctx.Done():
			ch <- InvokeResult{Error: c.ctx.Err()}
		}
	}()
	return ch
}

func replyResult(protocol wireProtocol, ack ackMessage) InvokeResult {
	if len(ack.Arguments) == 0 {
		return InvokeResult{Error: errors.New("empty reply")}
	}
	var reply callReply
	if err := protocol.UnmarshalArgument(ack.Arguments[0], &reply); err != nil {
		return InvokeResult{Error: err}
	}
	if reply.failed {
		return InvokeResult{Error: &CallError{Kind: ErrorKind(reply.Kind), Message: reply.Error}}
	}
	var value interface{}
	if err := protocol.UnmarshalArgument(reply.Result, &value); err != nil {
		return InvokeResult{Error: err}
	}
	return InvokeResult{Value: value}
}

func (c *client) Call(ctx context.Context, apiName, fncName string, args ...interface{}) (interface{}, error) {
	select {
	case r := <-c.Invoke(apiName, fncName, args...):
		return r.Value, r.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *client) API(apiName string) APIProxy {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.proxies[apiName]
}

func (c *client) Hook(name string) *Hook {
	c.mx.RLock()
	defer c.mx.RUnlock()
	if h, ok := c.hooks[name]; ok {
		return h
	}
	// not announced (yet), handlers are called once a discovery announces it
	return &Hook{name: name, router: c.router}
}

func (c *client) Discovery() Discovery {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.discovery
}

func (c *client) onConnected(l *loop) {
	_ = l.dbg.Log(evt, "connected")
}

func (c *client) onDisconnected(l *loop) {
	_ = l.info.Log(evt, "disconnected")
}

func (c *client) handleEmit(l *loop, message emitMessage) {
	if message.Name != emitEvent || len(message.Arguments) < 2 {
		_ = l.info.Log(evt, msgRecv, "error", "unexpected message", msg, fmtMsg(message), react, "ignore")
		return
	}
	var e Emission
	err := l.protocol.UnmarshalArgument(message.Arguments[0], &e.APIName)
	if err == nil {
		err = l.protocol.UnmarshalArgument(message.Arguments[1], &e.EventName)
	}
	if err == nil && len(message.Arguments) > 2 {
		err = l.protocol.UnmarshalArgument(message.Arguments[2], &e.Args)
	}
	if err != nil {
		_ = l.info.Log(evt, msgRecv, "error", err, msg, fmtMsg(message), react, "ignore")
		return
	}
	c.pushEvent(l.ctx, e)
}

func (c *client) allowReconnect() bool {
	return false
}

func (c *client) prefixLoggers(connectionID string) (info StructuredLogger, debug StructuredLogger) {
	return log.WithPrefix(c.info, "ts", log.DefaultTimestampUTC,
			"class", "Client",
			"connection", connectionID),
		log.WithPrefix(c.dbg, "ts", log.DefaultTimestampUTC,
			"class", "Client",
			"connection", connectionID)
}

// discoveryNames returns the sorted names of a discovery payload
func discoveryNames(payload discoveryPayload) (apis map[string][]string, events map[string][]string) {
	apis = make(map[string][]string, len(payload.API))
	for apiName, fns := range payload.API {
		names := make([]string, 0, len(fns))
		for fncName := range fns {
			names = append(names, fncName)
		}
		sort.Strings(names)
		apis[apiName] = names
	}
	events = make(map[string][]string, len(payload.Events))
	for apiName, names := range payload.Events {
		events[apiName] = append([]string(nil), names...)
		sort.Strings(events[apiName])
	}
	return apis, events
}
