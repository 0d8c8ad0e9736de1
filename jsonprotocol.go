package webglue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/go-kit/log"
)

// jsonProtocol is the JSON based webglue protocol.
// Every message is terminated by the ASCII record separator 0x1E.
type jsonProtocol struct {
	dbg log.Logger
}

const recordSeparator byte = 30

// jsonError is returned when a frame can not be parsed
type jsonError struct {
	raw string
	err error
}

func (j *jsonError) Error() string {
	return fmt.Sprintf("%v (source: %v)", j.err, j.raw)
}

func (j *jsonError) Unwrap() error {
	return j.err
}

// UnmarshalArgument unmarshals a json.RawMessage depending on the specified value type into value
func (j *jsonProtocol) UnmarshalArgument(src interface{}, dst interface{}) error {
	raw, ok := src.(json.RawMessage)
	if !ok {
		return fmt.Errorf("invalid source %#v for UnmarshalArgument", src)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &jsonError{string(raw), err}
	}
	_ = j.dbg.Log(evt, "UnmarshalArgument",
		"argument", string(raw),
		"value", fmt.Sprintf("%v", reflect.ValueOf(dst).Elem()))
	return nil
}

// ParseMessages reads all complete messages from reader. Bytes belonging to
// an incomplete message are kept in remainBuf for the next call.
func (j *jsonProtocol) ParseMessages(reader io.Reader, remainBuf *bytes.Buffer) ([]interface{}, error) {
	frames, err := readJSONFrames(reader, remainBuf)
	if err != nil {
		return nil, err
	}
	messages := make([]interface{}, 0, len(frames))
	for _, frame := range frames {
		if len(frame) == 0 {
			continue
		}
		_ = j.dbg.Log(evt, "read", msg, string(frame))
		var e envelope
		if err = json.Unmarshal(frame, &e); err != nil {
			return nil, &jsonError{string(frame), err}
		}
		message, err := e.message()
		if err != nil {
			return nil, &jsonError{string(frame), err}
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// readJSONFrames reads from reader until at least one record separator was
// received and returns the frames before the last separator.
func readJSONFrames(reader io.Reader, remainBuf *bytes.Buffer) ([][]byte, error) {
	p := make([]byte, 1<<15)
	buf := &bytes.Buffer{}
	_, _ = buf.ReadFrom(remainBuf)
	for {
		data := buf.Bytes()
		if last := bytes.LastIndexByte(data, recordSeparator); last != -1 {
			_, _ = remainBuf.Write(data[last+1:])
			return bytes.Split(data[:last], []byte{recordSeparator}), nil
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

// WriteMessage writes a message as JSON to the specified writer
func (j *jsonProtocol) WriteMessage(message interface{}, writer io.Writer) error {
	b, err := json.Marshal(message)
	if err != nil {
		return err
	}
	b = append(b, recordSeparator)
	_ = j.dbg.Log(evt, "write", msg, string(b[:len(b)-1]))
	_, err = writer.Write(b)
	return err
}

func (j *jsonProtocol) transferMode() TransferMode {
	return TextTransferMode
}

func (j *jsonProtocol) setDebugLogger(dbg StructuredLogger) {
	j.dbg = log.WithPrefix(dbg, "ts", log.DefaultTimestampUTC, "protocol", "JSON")
}
