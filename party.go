package webglue

import (
	"context"
	"time"

	"github.com/go-kit/log"
)

// Party is the common base of Server and Client. The Party methods are only used internally,
// but the interface is public to allow using Options on Party as parameters for external functions
type Party interface {
	context() context.Context
	cancel()

	// settings are changed by the options before the party is used
	settings() *partySettings

	onConnected(l *loop)
	onDisconnected(l *loop)
	handleEmit(l *loop, message emitMessage)

	allowReconnect() bool

	loggers() (info StructuredLogger, dbg StructuredLogger)
	setLoggers(info StructuredLogger, dbg StructuredLogger)

	prefixLoggers(connectionID string) (info StructuredLogger, dbg StructuredLogger)
}

// partySettings are the connection settings shared by Server and Client
type partySettings struct {
	timeout                   time.Duration
	handshakeTimeout          time.Duration
	keepAliveInterval         time.Duration
	maximumReceiveMessageSize uint
	enableDetailedErrors      bool
	insecureSkipVerify        bool
	originPatterns            []string
}

func defaultPartySettings() partySettings {
	return partySettings{
		timeout:                   30 * time.Second,
		handshakeTimeout:          15 * time.Second,
		keepAliveInterval:         5 * time.Second,
		maximumReceiveMessageSize: 1 << 15, // 32KB
	}
}

func newPartyBase(parentContext context.Context, info log.Logger, dbg log.Logger) partyBase {
	ctx, cancelFunc := context.WithCancel(parentContext)
	return partyBase{
		ctx:        ctx,
		cancelFunc: cancelFunc,
		config:     defaultPartySettings(),
		info:       info,
		dbg:        dbg,
	}
}

type partyBase struct {
	ctx        context.Context
	cancelFunc context.CancelFunc
	config     partySettings
	info       StructuredLogger
	dbg        StructuredLogger
}

func (p *partyBase) context() context.Context {
	return p.ctx
}

func (p *partyBase) cancel() {
	p.cancelFunc()
}

func (p *partyBase) settings() *partySettings {
	return &p.config
}

func (p *partyBase) setLoggers(info StructuredLogger, dbg StructuredLogger) {
	p.info = info
	p.dbg = dbg
}

func (p *partyBase) loggers() (info StructuredLogger, debug StructuredLogger) {
	return p.info, p.dbg
}
