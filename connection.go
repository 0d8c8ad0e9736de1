package webglue

import (
	"context"
	"io"
)

// Connection describes a connection between a webglue client and a Server
type Connection interface {
	io.Reader
	io.Writer
	Context() context.Context
	ConnectionID() string
}

// TransferModeConnection is implemented by connections which have to know
// if they transport text or binary frames.
type TransferModeConnection interface {
	SetTransferMode(transferMode TransferMode)
	TransferMode() TransferMode
}

// ReadWriteWithContext is a wrapper to make blocking io.Writer / io.Reader cancelable.
// It can be used to implement cancellation of connections.
// ReadWriteWithContext will return when either the Read/Write operation has ended or ctx has been canceled.
//
//	doRW func() (int, error)
//
// doRW should contain the Read/Write operation.
//
//	unblockRW func()
//
// unblockRW should contain the operation to unblock the Read/Write operation.
// If there is no way to unblock the operation, one goroutine will leak when ctx is canceled.
// net.Conn and websocket connections can be unblocked.
func ReadWriteWithContext(ctx context.Context, doRW func() (int, error), unblockRW func()) (int, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	resultChan := make(chan rwJobResult, 1)
	go func() {
		n, err := doRW()
		resultChan <- rwJobResult{n: n, err: err}
		close(resultChan)
	}()
	select {
	case <-ctx.Done():
		unblockRW()
		return 0, ctx.Err()
	case r := <-resultChan:
		return r.n, r.err
	}
}

type rwJobResult struct {
	n   int
	err error
}
