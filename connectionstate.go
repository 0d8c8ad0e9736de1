package webglue

import (
	"context"
	"sync"
)

// ConnectionState is the state of one connection on the server side.
// It is passed to every CallCheck, EventFilter and to functions which ask for it.
// Items is free for use by the application, e.g. to store the identity
// of an authenticated user.
type ConnectionState struct {
	connectionID string
	ctx          context.Context
	items        *sync.Map
	abort        func()

	mx         sync.RWMutex
	version    string
	discovered bool
}

func newConnectionState(ctx context.Context, connectionID string, abort func()) *ConnectionState {
	return &ConnectionState{
		connectionID: connectionID,
		ctx:          ctx,
		items:        &sync.Map{},
		abort:        abort,
	}
}

// ConnectionID is the id of the underlying connection
func (c *ConnectionState) ConnectionID() string {
	return c.connectionID
}

// Context is canceled when the connection ends
func (c *ConnectionState) Context() context.Context {
	return c.ctx
}

// Items holds application defined values for this connection
func (c *ConnectionState) Items() *sync.Map {
	return c.items
}

// Abort closes the connection
func (c *ConnectionState) Abort() {
	c.abort()
}

// Version is the protocol version the client sent with discover.
// It is empty as long as the connection is not discovered.
func (c *ConnectionState) Version() string {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.version
}

// Discovered tells if the client has completed discovery
func (c *ConnectionState) Discovered() bool {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.discovered
}

func (c *ConnectionState) setDiscovered(version string) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.version = version
	c.discovered = true
}
