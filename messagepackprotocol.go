package webglue

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-kit/log"
	"github.com/vmihailenco/msgpack/v5"
)

// messagePackProtocol encodes messages with MessagePack.
// Every frame is prefixed by its length as uvarint.
type messagePackProtocol struct {
	dbg log.Logger
}

func (m *messagePackProtocol) ParseMessages(reader io.Reader, remainBuf *bytes.Buffer) ([]interface{}, error) {
	frames, err := readMessagePackFrames(reader, remainBuf)
	if err != nil {
		return nil, err
	}
	messages := make([]interface{}, 0, len(frames))
	for _, frame := range frames {
		if len(frame) == 0 {
			continue
		}
		decoder := newMessagePackDecoder(bytes.NewReader(frame))
		var e envelope
		if err = decoder.Decode(&e); err != nil {
			return nil, err
		}
		message, err := e.message()
		if err != nil {
			return nil, err
		}
		_ = m.dbg.Log(evt, "read", msg, fmtMsg(message))
		messages = append(messages, message)
	}
	return messages, nil
}

func readMessagePackFrames(reader io.Reader, remainBuf *bytes.Buffer) ([][]byte, error) {
	p := make([]byte, 1<<15)
	buf := &bytes.Buffer{}
	_, _ = buf.ReadFrom(remainBuf)
	for {
		frames := make([][]byte, 0)
		data := buf.Bytes()
		for {
			frameLen, lenLen := binary.Uvarint(data)
			if lenLen < 0 {
				return nil, errors.New("messagepack frame length too large")
			}
			if lenLen == 0 || uint64(len(data)-lenLen) < frameLen {
				// incomplete
				break
			}
			frames = append(frames, data[lenLen:lenLen+int(frameLen)])
			data = data[lenLen+int(frameLen):]
		}
		if len(frames) > 0 {
			_, _ = remainBuf.Write(data)
			return frames, nil
		}
		n, err := reader.Read(p)
		if n > 0 {
			_, _ = buf.Write(p[:n])
		}
		if err != nil {
			return nil, err
		}
	}
}

func (m *messagePackProtocol) WriteMessage(message interface{}, writer io.Writer) error {
	buf := &bytes.Buffer{}
	encoder := msgpack.NewEncoder(buf)
	// Ensure the same field names as the JSON protocol
	encoder.SetCustomStructTag("json")
	if err := encoder.Encode(message); err != nil {
		return err
	}
	frameBuf := &bytes.Buffer{}
	lenBuf := make([]byte, binary.MaxVarintLen32)
	lenLen := binary.PutUvarint(lenBuf, uint64(buf.Len()))
	_, _ = frameBuf.Write(lenBuf[:lenLen])
	_, _ = frameBuf.ReadFrom(buf)
	_ = m.dbg.Log(evt, "write", msg, fmt.Sprintf("%#v", message))
	_, err := frameBuf.WriteTo(writer)
	return err
}

// UnmarshalArgument unmarshals raw bytes to a destination value. dst is the pointer to the destination value.
func (m *messagePackProtocol) UnmarshalArgument(src interface{}, dst interface{}) error {
	raw, ok := src.(msgpack.RawMessage)
	if !ok {
		return fmt.Errorf("invalid source %#v for UnmarshalArgument", src)
	}
	return newMessagePackDecoder(bytes.NewReader(raw)).Decode(dst)
}

func newMessagePackDecoder(r io.Reader) *msgpack.Decoder {
	decoder := msgpack.NewDecoder(r)
	// Default map decoding expects all maps to have string keys
	decoder.SetMapDecoder(func(decoder *msgpack.Decoder) (interface{}, error) {
		return decoder.DecodeUntypedMap()
	})
	// Ensure uppercase/lowercase mapping for struct member names
	decoder.SetCustomStructTag("json")
	return decoder
}

func (m *messagePackProtocol) transferMode() TransferMode {
	return BinaryTransferMode
}

func (m *messagePackProtocol) setDebugLogger(dbg StructuredLogger) {
	m.dbg = log.WithPrefix(dbg, "ts", log.DefaultTimestampUTC, "protocol", "MSGP")
}
