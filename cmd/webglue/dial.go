package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/philippseith/webglue"
)

// dial connects to ws://, wss:// or tcp:// addresses
func dial(ctx context.Context, address string) (webglue.Connection, error) {
	if hostPort, ok := strings.CutPrefix(address, "tcp://"); ok {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", hostPort)
		if err != nil {
			return nil, err
		}
		return webglue.NewNetConnection(ctx, conn), nil
	}
	return webglue.DialWebSocket(ctx, address, nil)
}

// serveTCP serves each accepted connection until ctx is canceled
func serveTCP(ctx context.Context, listener net.Listener, server webglue.Server) error {
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			_ = server.Serve(webglue.NewNetConnection(ctx, conn))
		}()
	}
}
