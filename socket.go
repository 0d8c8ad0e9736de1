package webglue

import (
	"bytes"
	"context"
	"errors"
	"sync"
)

// socket is a Connection combined with the negotiated wireProtocol.
// It reads and writes whole messages.
type socket struct {
	protocol   wireProtocol
	mx         sync.Mutex
	writeMx    sync.Mutex
	connected  bool
	abortChans []chan error
	connection Connection
	remainBuf  *bytes.Buffer
	ctx        context.Context
}

func newSocket(ctx context.Context, connection Connection, protocol wireProtocol, remainBuf *bytes.Buffer) *socket {
	if remainBuf == nil {
		remainBuf = &bytes.Buffer{}
	}
	return &socket{
		protocol:   protocol,
		connection: connection,
		remainBuf:  remainBuf,
		ctx:        ctx,
		abortChans: make([]chan error, 0),
	}
}

func (s *socket) Start() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.connected = true
}

func (s *socket) IsConnected() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.connected
}

func (s *socket) ConnectionID() string {
	return s.connection.ConnectionID()
}

// Receive blocks until at least one complete message has been read.
// It must not be called concurrently.
func (s *socket) Receive() ([]interface{}, error) {
	if !s.IsConnected() {
		return nil, errors.New("socket not connected")
	}
	messages, err := s.protocol.ParseMessages(s.connection, s.remainBuf)
	if err != nil {
		s.Abort()
	}
	return messages, err
}

func (s *socket) Emit(name string, ackID string, args ...interface{}) (emitMessage, error) {
	if args == nil {
		args = make([]interface{}, 0)
	}
	var emitMessage = emitMessage{
		Type:      messageTypeEmit,
		Name:      name,
		AckID:     ackID,
		Arguments: args,
	}
	return emitMessage, s.writeMessage(emitMessage)
}

func (s *socket) Ack(ackID string, args ...interface{}) (ackMessage, error) {
	var ackMessage = ackMessage{
		Type:      messageTypeAck,
		AckID:     ackID,
		Arguments: args,
	}
	return ackMessage, s.writeMessage(ackMessage)
}

func (s *socket) Ping() (hubMessage, error) {
	var pingMessage = hubMessage{
		Type: messageTypePing,
	}
	return pingMessage, s.writeMessage(pingMessage)
}

func (s *socket) Close(error string, allowReconnect bool) (closeMessage, error) {
	var closeMessage = closeMessage{
		Type:           messageTypeClose,
		Error:          error,
		AllowReconnect: allowReconnect,
	}
	return closeMessage, s.writeMessage(closeMessage)
}

func (s *socket) Abort() {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.connected {
		err := errors.New("connection aborted")
		for _, ch := range s.abortChans {
			ch <- err
		}
		s.connected = false
	}
}

func (s *socket) Aborted() <-chan error {
	s.mx.Lock()
	defer s.mx.Unlock()
	ch := make(chan error, 1)
	s.abortChans = append(s.abortChans, ch)
	return ch
}

func (s *socket) writeMessage(message interface{}) error {
	_, isCloseMsg := message.(closeMessage)
	if !s.IsConnected() &&
		// Allow sending closeMessage when not connected
		!isCloseMsg {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		return errors.New("socket not connected")
	}
	e := make(chan error, 1)
	go func() {
		s.writeMx.Lock()
		defer s.writeMx.Unlock()
		e <- s.protocol.WriteMessage(message, s.connection)
	}()
	select {
	case <-s.ctx.Done():
		s.Abort()
		return s.ctx.Err()
	case err := <-e:
		if err != nil {
			s.Abort()
		}
		return err
	}
}
