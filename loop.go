package webglue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/teivah/onecontext"
)

// loop is the message loop of one connection. Server and client use the same loop,
// the Party decides what to do with emitted messages.
type loop struct {
	party             Party
	info              StructuredLogger
	dbg               StructuredLogger
	protocol          wireProtocol
	conn              Connection
	socket            *socket
	acks              *ackClient
	state             *ConnectionState
	ctx               context.Context
	cancel            context.CancelFunc
	timeout           time.Duration
	keepAliveInterval time.Duration
}

func newLoop(p Party, conn Connection, protocol wireProtocol, remainBuf *bytes.Buffer) *loop {
	info, dbg := p.prefixLoggers(conn.ConnectionID())
	protocol.setDebugLogger(dbg)
	ctx, cancel := onecontext.Merge(p.context(), conn.Context())
	s := newSocket(ctx, conn, protocol, remainBuf)
	return &loop{
		party:             p,
		info:              info,
		dbg:               dbg,
		protocol:          protocol,
		conn:              conn,
		socket:            s,
		acks:              newAckClient(),
		state:             newConnectionState(ctx, conn.ConnectionID(), s.Abort),
		ctx:               ctx,
		cancel:            cancel,
		timeout:           p.settings().timeout,
		keepAliveInterval: p.settings().keepAliveInterval,
	}
}

// Run processes messages until the connection ends. started is closed after
// the party has been notified about the new connection.
func (l *loop) Run(started chan struct{}) (err error) {
	l.socket.Start()
	aborted := l.socket.Aborted()
	l.party.onConnected(l)
	if started != nil {
		close(started)
	}
	recvCh := make(chan interface{}, 1)
	recvErrCh := make(chan error, 1)
	go l.receive(recvCh, recvErrCh)
	timeoutWatchdog := time.NewTimer(l.timeout)
	defer timeoutWatchdog.Stop()
	keepAliveTicker := time.NewTicker(l.keepAliveInterval)
	defer keepAliveTicker.Stop()
loop:
	for {
		select {
		case message := <-recvCh:
			timeoutWatchdog.Reset(l.timeout)
			switch message := message.(type) {
			case emitMessage:
				_ = l.dbg.Log(evt, msgRecv, msg, fmtMsg(message))
				l.party.handleEmit(l, message)
			case ackMessage:
				_ = l.dbg.Log(evt, msgRecv, msg, fmtMsg(message))
				if ackErr := l.acks.receiveAck(message); ackErr != nil {
					_ = l.info.Log(evt, msgRecv, "error", ackErr, msg, fmtMsg(message), react, "ignore")
				}
			case closeMessage:
				_ = l.dbg.Log(evt, msgRecv, msg, fmtMsg(message))
				if message.Error != "" {
					err = fmt.Errorf("connection closed by the other party: %v", message.Error)
				}
				break loop
			case hubMessage:
				_ = l.dbg.Log(evt, msgRecv, msg, fmtMsg(message))
			}
		case err = <-recvErrCh:
			break loop
		case <-timeoutWatchdog.C:
			err = fmt.Errorf("party timeout interval elapsed (%v)", l.timeout)
			break loop
		case <-keepAliveTicker.C:
			sendMessageAndLog(func() (interface{}, error) { return l.socket.Ping() }, l.info)
		case err = <-aborted:
			break loop
		case <-l.ctx.Done():
			err = l.ctx.Err()
			break loop
		}
	}
	l.acks.cancelAll()
	l.party.onDisconnected(l)
	errMessage := ""
	if err != nil {
		errMessage = err.Error()
	}
	sendMessageAndLog(func() (interface{}, error) {
		return l.socket.Close(errMessage, l.party.allowReconnect())
	}, l.info)
	l.cancel()
	if closer, ok := l.conn.(io.Closer); ok {
		_ = closer.Close()
	}
	_ = l.dbg.Log(evt, "message loop ended", "error", err)
	return err
}

func (l *loop) receive(recvCh chan<- interface{}, recvErrCh chan<- error) {
	for {
		messages, err := l.socket.Receive()
		if err != nil {
			_ = l.info.Log(evt, msgRecv, "error", err, react, "close connection")
			recvErrCh <- err
			return
		}
		for _, message := range messages {
			select {
			case recvCh <- message:
			case <-l.ctx.Done():
				return
			}
		}
	}
}

// Abort ends the loop
func (l *loop) Abort() {
	l.socket.Abort()
}

func sendMessageAndLog(connFunc func() (interface{}, error), info StructuredLogger) {
	if msg, err := connFunc(); err != nil {
		_ = info.Log(evt, msgSend, "message", fmtMsg(msg), "error", err)
	}
}

func fmtMsg(msg interface{}) string {
	return fmt.Sprintf("%v", msg)
}
