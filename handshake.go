package webglue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

const handshakeProtocolVersion = 1

func newProtocol(name string) (wireProtocol, error) {
	switch name {
	case "json":
		return &jsonProtocol{}, nil
	case "messagepack":
		return &messagePackProtocol{}, nil
	default:
		return nil, fmt.Errorf("protocol %v not supported", name)
	}
}

// readFirstJSONFrame reads the first 0x1E terminated frame from reader.
// Bytes after the frame are left in remainBuf.
func readFirstJSONFrame(reader io.Reader, remainBuf *bytes.Buffer) ([]byte, error) {
	p := make([]byte, 1<<12)
	for {
		if i := bytes.IndexByte(remainBuf.Bytes(), recordSeparator); i != -1 {
			frame := make([]byte, i)
			copy(frame, remainBuf.Next(i + 1))
			return frame, nil
		}
		n, err := reader.Read(p)
		if n > 0 {
			_, _ = remainBuf.Write(p[:n])
		}
		if err != nil {
			return nil, err
		}
	}
}

// withHandshakeTimeout runs handshake and gives up when timeout elapsed or ctx is canceled
func withHandshakeTimeout(ctx context.Context, timeout time.Duration, handshake func() error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- handshake() }()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-timer.C:
		return fmt.Errorf("handshake not finished after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeHandshakeFrame(conn Connection, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = conn.Write(append(b, recordSeparator))
	return err
}

// serverHandshake reads the handshake request and answers it. The returned buffer
// contains bytes which the client sent after the handshake request.
func serverHandshake(ctx context.Context, conn Connection, timeout time.Duration, info StructuredLogger) (protocol wireProtocol, remainBuf *bytes.Buffer, err error) {
	remainBuf = &bytes.Buffer{}
	err = withHandshakeTimeout(ctx, timeout, func() error {
		frame, err := readFirstJSONFrame(conn, remainBuf)
		if err != nil {
			return err
		}
		request := handshakeRequest{}
		if err = json.Unmarshal(frame, &request); err != nil {
			_ = info.Log(evt, "handshake received", msg, string(frame), "error", err)
			return err
		}
		if request.Version != handshakeProtocolVersion {
			err = fmt.Errorf("protocol version %v not supported", request.Version)
		} else {
			protocol, err = newProtocol(request.Protocol)
		}
		if err != nil {
			_ = writeHandshakeFrame(conn, handshakeResponse{Error: err.Error()})
			return err
		}
		if err = writeHandshakeFrame(conn, handshakeResponse{}); err != nil {
			return err
		}
		// The handshake itself is always text
		if tmc, ok := conn.(TransferModeConnection); ok {
			tmc.SetTransferMode(protocol.transferMode())
		}
		return nil
	})
	if err != nil {
		_ = info.Log(evt, "handshake", "error", err, react, "close connection")
	}
	return protocol, remainBuf, err
}

// clientHandshake sends the handshake request for the protocol named format
func clientHandshake(ctx context.Context, conn Connection, format string, timeout time.Duration) (protocol wireProtocol, remainBuf *bytes.Buffer, err error) {
	if protocol, err = newProtocol(format); err != nil {
		return nil, nil, err
	}
	remainBuf = &bytes.Buffer{}
	err = withHandshakeTimeout(ctx, timeout, func() error {
		if err := writeHandshakeFrame(conn, handshakeRequest{Protocol: format, Version: handshakeProtocolVersion}); err != nil {
			return err
		}
		frame, err := readFirstJSONFrame(conn, remainBuf)
		if err != nil {
			return err
		}
		response := handshakeResponse{}
		if err = json.Unmarshal(frame, &response); err != nil {
			return err
		}
		if response.Error != "" {
			return errors.New(response.Error)
		}
		if tmc, ok := conn.(TransferModeConnection); ok {
			tmc.SetTransferMode(protocol.transferMode())
		}
		return nil
	})
	return protocol, remainBuf, err
}
