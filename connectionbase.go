package webglue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ConnectionBase is a baseclass for implementers of the Connection interface.
type ConnectionBase struct {
	mx           sync.RWMutex
	ctx          context.Context
	connectionID string
}

// NewConnectionBase creates a new ConnectionBase. An empty connectionID is replaced by a new random id.
func NewConnectionBase(ctx context.Context, connectionID string) *ConnectionBase {
	if connectionID == "" {
		connectionID = newConnectionID()
	}
	return &ConnectionBase{
		ctx:          ctx,
		connectionID: connectionID,
	}
}

// Context can be used to wait for cancellation of the Connection
func (cb *ConnectionBase) Context() context.Context {
	cb.mx.RLock()
	defer cb.mx.RUnlock()
	return cb.ctx
}

// ConnectionID is the ID of the connection.
func (cb *ConnectionBase) ConnectionID() string {
	cb.mx.RLock()
	defer cb.mx.RUnlock()
	return cb.connectionID
}

func newConnectionID() string {
	return uuid.NewString()
}
