package webglue

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Protocol", func() {

	Context("JSON frames", func() {
		It("should keep the bytes after the last record separator", func() {
			remain := &bytes.Buffer{}
			frames, err := readJSONFrames(strings.NewReader("{\"a\":1}\x1e{\"b\":2}\x1e{\"c\""), remain)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(Equal([][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`)}))
			Expect(remain.String()).To(Equal(`{"c"`))
			frames, err = readJSONFrames(strings.NewReader(":3}\x1e"), remain)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(Equal([][]byte{[]byte(`{"c":3}`)}))
			Expect(remain.Len()).To(Equal(0))
		})
		It("should parse all message types", func() {
			p := &jsonProtocol{}
			p.setDebugLogger(testLogger())
			input := `{"type":1,"name":"call","ackId":"7","args":[{"api":"math","fnc":"add","args":[1,2]}]}` + "\x1e" +
				`{"type":2,"ackId":"7","args":[{"result":3}]}` + "\x1e" +
				`{"type":6}` + "\x1e" +
				`{"type":7,"error":"bye","allowReconnect":true}` + "\x1e"
			messages, err := p.ParseMessages(strings.NewReader(input), &bytes.Buffer{})
			Expect(err).NotTo(HaveOccurred())
			Expect(messages).To(HaveLen(4))
			emit := messages[0].(emitMessage)
			Expect(emit.Name).To(Equal(emitCall))
			Expect(emit.AckID).To(Equal("7"))
			var call callEnvelope
			Expect(p.UnmarshalArgument(emit.Arguments[0], &call)).To(Succeed())
			Expect(call.API).To(Equal("math"))
			Expect(call.Fnc).To(Equal("add"))
			Expect(call.Args).To(HaveLen(2))
			ack := messages[1].(ackMessage)
			var reply callReply
			Expect(p.UnmarshalArgument(ack.Arguments[0], &reply)).To(Succeed())
			Expect(reply.failed).To(BeFalse())
			Expect(messages[2]).To(Equal(hubMessage{Type: messageTypePing}))
			Expect(messages[3]).To(Equal(closeMessage{Type: messageTypeClose, Error: "bye", AllowReconnect: true}))
		})
		It("should reject unknown message types", func() {
			p := &jsonProtocol{}
			p.setDebugLogger(testLogger())
			_, err := p.ParseMessages(strings.NewReader(`{"type":3}`+"\x1e"), &bytes.Buffer{})
			Expect(err).To(HaveOccurred())
		})
		It("should write exactly one of result and error", func() {
			p := &jsonProtocol{}
			p.setDebugLogger(testLogger())
			buf := &bytes.Buffer{}
			Expect(p.WriteMessage(ackMessage{Type: messageTypeAck, AckID: "1", Arguments: arguments{callReply{Result: nil}}}, buf)).To(Succeed())
			Expect(p.WriteMessage(ackMessage{Type: messageTypeAck, AckID: "2",
				Arguments: arguments{failedReply(&CallError{Kind: KindUnknownAPI, Message: "There is no API x"}, "1.1")}}, buf)).To(Succeed())
			Expect(buf.String()).To(Equal(
				`{"type":2,"ackId":"1","args":[{"result":null}]}` + "\x1e" +
					`{"type":2,"ackId":"2","args":[{"error":"There is no API x","kind":"UnknownApi"}]}` + "\x1e"))
		})
	})

	Context("MessagePack frames", func() {
		It("should split length prefixed frames", func() {
			frame := func(s string) []byte {
				b := binary.AppendUvarint(nil, uint64(len(s)))
				return append(b, s...)
			}
			input := append(frame("abc"), frame("de")...)
			input = append(input, frame("fghij")[:3]...)
			remain := &bytes.Buffer{}
			frames, err := readMessagePackFrames(bytes.NewReader(input), remain)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(Equal([][]byte{[]byte("abc"), []byte("de")}))
			Expect(remain.Len()).To(Equal(3))
		})
	})

	Context("When the client uses MessagePack", func() {
		It("should call functions and receive events", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			said := NewEventSlot()
			server := newTestServer(ctx, Modules(Module{
				API: map[string]Functions{
					"math": {"add": func(a, b float64) float64 { return a + b }},
					"text": {"join": func(parts []string, sep string) string { return strings.Join(parts, sep) }},
				},
				Events: Events{"chat": Events{"said": said}},
			}))
			client := serveClient(server, TransferFormat("Binary"))
			defer func() { _ = client.Stop() }()

			result, err := call(client, "math", "add", 2, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(5.0))
			result, err = call(client, "text", "join", []string{"a", "b"}, "-")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal("a-b"))
			_, err = call(client, "text", "split")
			Expect(err).To(MatchError(&CallError{Kind: KindUnknownFunction, Message: "There is no function split in API text"}))

			r := &eventRecorder{}
			client.Hook("onChatSaid").Attach(&testTarget{}, r.handler)
			Eventually(server.ConnectionCount).Should(Equal(1))
			said.Emit("alice", "hello")
			Eventually(r.received).Should(Equal([][]interface{}{{"alice", "hello"}}))
		})
	})
})
