package webglue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// wireProtocol encodes and decodes the messages exchanged over a Connection.
type wireProtocol interface {
	ParseMessages(reader io.Reader, remainBuf *bytes.Buffer) ([]interface{}, error)
	WriteMessage(message interface{}, writer io.Writer) error
	UnmarshalArgument(src interface{}, dst interface{}) error
	transferMode() TransferMode
	setDebugLogger(dbg StructuredLogger)
}

// TransferMode is either TextTransferMode or BinaryTransferMode
type TransferMode int

// TransferMode values
const (
	TextTransferMode TransferMode = iota + 1
	BinaryTransferMode
)

// Message types
const (
	messageTypeEmit  = 1
	messageTypeAck   = 2
	messageTypePing  = 6
	messageTypeClose = 7
)

// Names of emitted messages. They are part of the wire contract.
const (
	emitDiscover = "discover"
	emitCall     = "call"
	emitEvent    = "event"
)

type hubMessage struct {
	Type int `json:"type"`
}

// emitMessage is a named message with positional arguments.
// If AckID is set, the receiver answers with an ackMessage carrying the same id.
type emitMessage struct {
	Type      int       `json:"type"`
	Name      string    `json:"name"`
	AckID     string    `json:"ackId,omitempty"`
	Arguments arguments `json:"args"`
}

type ackMessage struct {
	Type      int       `json:"type"`
	AckID     string    `json:"ackId"`
	Arguments arguments `json:"args"`
}

type closeMessage struct {
	Type           int    `json:"type"`
	Error          string `json:"error,omitempty"`
	AllowReconnect bool   `json:"allowReconnect,omitempty"`
}

// envelope is the union of all message fields, used for parsing
type envelope struct {
	Type           int       `json:"type"`
	Name           string    `json:"name"`
	AckID          string    `json:"ackId"`
	Arguments      arguments `json:"args"`
	Error          string    `json:"error"`
	AllowReconnect bool      `json:"allowReconnect"`
}

func (e envelope) message() (interface{}, error) {
	switch e.Type {
	case messageTypeEmit:
		return emitMessage{Type: e.Type, Name: e.Name, AckID: e.AckID, Arguments: e.Arguments}, nil
	case messageTypeAck:
		return ackMessage{Type: e.Type, AckID: e.AckID, Arguments: e.Arguments}, nil
	case messageTypePing:
		return hubMessage{Type: e.Type}, nil
	case messageTypeClose:
		return closeMessage{Type: e.Type, Error: e.Error, AllowReconnect: e.AllowReconnect}, nil
	default:
		return nil, fmt.Errorf("invalid message type %v", e.Type)
	}
}

type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// arguments holds outgoing values or, after parsing, the raw encoded
// arguments (json.RawMessage or msgpack.RawMessage) which are decoded
// lazily with UnmarshalArgument into the types the receiver expects.
type arguments []interface{}

func (a *arguments) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	args := make(arguments, len(raw))
	for i, r := range raw {
		args[i] = r
	}
	*a = args
	return nil
}

func (a *arguments) DecodeMsgpack(decoder *msgpack.Decoder) error {
	n, err := decoder.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n < 0 {
		*a = nil
		return nil
	}
	args := make(arguments, n)
	for i := 0; i < n; i++ {
		if args[i], err = decoder.DecodeRaw(); err != nil {
			return err
		}
	}
	*a = args
	return nil
}

// functionRef is the name marker sent for each discovered function
type functionRef struct {
	API string `json:"api"`
	Fnc string `json:"fnc"`
}

// discoveryPayload answers the discover message
type discoveryPayload struct {
	Events map[string][]string               `json:"events"`
	API    map[string]map[string]functionRef `json:"api"`
	Error  string                            `json:"error,omitempty"`
}

// callEnvelope is the argument of the call message
type callEnvelope struct {
	API  string    `json:"api"`
	Fnc  string    `json:"fnc"`
	Args arguments `json:"args"`
}

// callReply is exactly one of {result} or {error}. Kind is only sent
// to clients which negotiated a protocol version that knows about it.
type callReply struct {
	Result interface{}
	Error  string
	Kind   string
	failed bool
}

func (r callReply) MarshalJSON() ([]byte, error) {
	if r.failed {
		return json.Marshal(struct {
			Error string `json:"error"`
			Kind  string `json:"kind,omitempty"`
		}{r.Error, r.Kind})
	}
	return json.Marshal(struct {
		Result interface{} `json:"result"`
	}{r.Result})
}

func (r *callReply) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["error"]; ok {
		r.failed = true
		if err := json.Unmarshal(raw, &r.Error); err != nil {
			return err
		}
		if raw, ok := fields["kind"]; ok {
			return json.Unmarshal(raw, &r.Kind)
		}
		return nil
	}
	if raw, ok := fields["result"]; ok {
		r.Result = raw
		return nil
	}
	return fmt.Errorf("reply %s has neither result nor error", string(data))
}

func (r callReply) EncodeMsgpack(encoder *msgpack.Encoder) (err error) {
	if r.failed {
		fields := 1
		if r.Kind != "" {
			fields = 2
		}
		if err = encoder.EncodeMapLen(fields); err != nil {
			return err
		}
		if err = encoder.EncodeString("error"); err != nil {
			return err
		}
		if err = encoder.EncodeString(r.Error); err != nil {
			return err
		}
		if r.Kind != "" {
			if err = encoder.EncodeString("kind"); err != nil {
				return err
			}
			err = encoder.EncodeString(r.Kind)
		}
		return err
	}
	if err = encoder.EncodeMapLen(1); err != nil {
		return err
	}
	if err = encoder.EncodeString("result"); err != nil {
		return err
	}
	return encoder.Encode(r.Result)
}

func (r *callReply) DecodeMsgpack(decoder *msgpack.Decoder) error {
	n, err := decoder.DecodeMapLen()
	if err != nil {
		return err
	}
	hasResult := false
	for i := 0; i < n; i++ {
		key, err := decoder.DecodeString()
		if err != nil {
			return err
		}
		switch key {
		case "error":
			r.failed = true
			r.Error, err = decoder.DecodeString()
		case "kind":
			r.Kind, err = decoder.DecodeString()
		case "result":
			hasResult = true
			r.Result, err = decoder.DecodeRaw()
		default:
			err = decoder.Skip()
		}
		if err != nil {
			return err
		}
	}
	if !r.failed && !hasResult {
		return fmt.Errorf("reply has neither result nor error")
	}
	return nil
}
