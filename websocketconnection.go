package webglue

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

type webSocketConnection struct {
	ConnectionBase
	conn         *websocket.Conn
	readMx       sync.Mutex
	r            *bytes.Reader
	transferMode TransferMode
}

func newWebSocketConnection(ctx context.Context, connectionID string, conn *websocket.Conn) *webSocketConnection {
	return &webSocketConnection{
		ConnectionBase: ConnectionBase{ctx: ctx, connectionID: connectionID},
		conn:           conn,
		transferMode:   TextTransferMode,
	}
}

// DialWebSocket connects to a webglue server websocket endpoint, e.g. ws://localhost:8080/webglue.
// header is sent with the upgrade request and may be nil.
func DialWebSocket(ctx context.Context, address string, header http.Header) (Connection, error) {
	ws, _, err := websocket.Dial(ctx, address, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}
	return newWebSocketConnection(context.Background(), newConnectionID(), ws), nil
}

func (w *webSocketConnection) Write(p []byte) (n int, err error) {
	messageType := websocket.MessageText
	if w.TransferMode() == BinaryTransferMode {
		messageType = websocket.MessageBinary
	}
	err = w.conn.Write(w.Context(), messageType, p)
	if err != nil {
		return 0, fmt.Errorf("%T: %w", w, err)
	}
	return len(p), nil
}

// Read delivers the data of one websocket message, possibly in several chunks
func (w *webSocketConnection) Read(p []byte) (n int, err error) {
	w.readMx.Lock()
	defer w.readMx.Unlock()
	if w.r == nil || w.r.Len() == 0 {
		_, data, err := w.conn.Read(w.Context())
		if err != nil {
			return 0, fmt.Errorf("%T: %w", w, err)
		}
		w.r = bytes.NewReader(data)
	}
	return w.r.Read(p)
}

func (w *webSocketConnection) TransferMode() TransferMode {
	w.mx.RLock()
	defer w.mx.RUnlock()
	return w.transferMode
}

func (w *webSocketConnection) SetTransferMode(transferMode TransferMode) {
	w.mx.Lock()
	defer w.mx.Unlock()
	w.transferMode = transferMode
}

// Close closes the underlying websocket with a normal closure status
func (w *webSocketConnection) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "")
}
