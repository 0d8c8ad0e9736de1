package webglue

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Discovery", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		tick   *EventSlot
	)
	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		tick = NewEventSlot()
	})
	AfterEach(func() {
		cancel()
	})

	Context("When the client sends a supported version", func() {
		It("should build hooks for all events and the heartbeat", func() {
			server := newTestServer(ctx, Modules(Module{
				API:    map[string]Functions{"math": {"add": func(a, b int) int { return a + b }}},
				Events: Events{"tick": tick, "chat": Events{"said": NewEventSlot()}},
			}))
			client := serveClient(server)
			defer func() { _ = client.Stop() }()
			Expect(client.Discovery().Events).To(Equal(map[string][]string{"": {"tick"}, "chat": {"said"}}))
			for _, name := range []string{"onTick", "onChatSaid", "onHeartbeat"} {
				hook := client.Hook(name)
				Expect(hook).NotTo(BeNil(), name)
				Expect(hook.Name()).To(Equal(name))
			}
			apiName, eventName := client.Hook("onChatSaid").Event()
			Expect(apiName).To(Equal("chat"))
			Expect(eventName).To(Equal("said"))
		})
		It("should return a usable hook for names no discovery announced", func() {
			server := newTestServer(ctx, Modules(Module{Events: Events{"tick": tick}}))
			client := serveClient(server)
			defer func() { _ = client.Stop() }()
			hook := client.Hook("onChatSaid")
			Expect(hook).NotTo(BeNil())
			Expect(hook.Name()).To(Equal("onChatSaid"))
			r := &eventRecorder{}
			detach := hook.Attach(&testTarget{name: "unknown"}, r.handler)
			ticks := &eventRecorder{}
			client.Hook("onTick").Attach(&testTarget{name: "tick"}, ticks.handler)
			tick.Emit(1)
			Eventually(ticks.received).Should(HaveLen(1))
			Expect(r.received()).To(BeEmpty())
			detach()
		})
	})

	Context("When the client sends an unsupported version", func() {
		It("should fail Start", func() {
			server := newTestServer(ctx, SupportedVersions("1.1"))
			client, err := newPipeClient(server, ProtocolVersion("0.9"))
			Expect(err).NotTo(HaveOccurred())
			err = client.Start()
			Expect(errors.Is(err, ErrUnsupportedVersion)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("0.9"))
			Eventually(client.Context().Done()).Should(BeClosed())
		})
	})

	Context("When the server does not answer discover", func() {
		It("should fail Start with ErrDiscoveryTimeout", func() {
			cliConn, srvConn := newClientServerConnections()
			defer func() { _ = srvConn.Close() }()
			go mute(srvConn)
			client, err := NewClient(ctx, WithConnection(cliConn), DiscoveryTimeout(100*time.Millisecond), testLoggerOption())
			Expect(err).NotTo(HaveOccurred())
			err = client.Start()
			Expect(errors.Is(err, ErrDiscoveryTimeout)).To(BeTrue())
		})
	})

	Context("When the client has no connection", func() {
		It("should fail Start", func() {
			client, err := NewClient(ctx, testLoggerOption())
			Expect(err).NotTo(HaveOccurred())
			Expect(client.Start()).To(MatchError(ErrNoConnection))
		})
		It("should not accept both connection options", func() {
			cliConn, _ := newClientServerConnections()
			_, err := NewClient(ctx, WithConnection(cliConn), WithConnector(func() (Connection, error) { return cliConn, nil }))
			Expect(err).To(HaveOccurred())
		})
	})

	Context("When the connection is lost", func() {
		It("should reconnect and discover again", func() {
			server := newTestServer(ctx, Modules(Module{
				API: map[string]Functions{"math": {"add": func(a, b int) int { return a + b }}},
			}))
			var connections atomic.Int32
			var current atomic.Pointer[pipeConnection]
			discovered := make(chan struct{}, 10)
			client, err := NewClient(ctx,
				WithConnector(func() (Connection, error) {
					cliConn, srvConn := newClientServerConnections()
					go func() { _ = server.Serve(srvConn) }()
					connections.Add(1)
					current.Store(cliConn)
					return cliConn, nil
				}),
				OnConnect(func(Client) { discovered <- struct{}{} }),
				testLoggerOption())
			Expect(err).NotTo(HaveOccurred())
			Expect(client.Start()).To(Succeed())
			defer func() { _ = client.Stop() }()
			Eventually(discovered).Should(Receive())

			current.Load().fail.Store(errors.New("connection lost"))
			_ = current.Load().Close()
			Eventually(discovered, 5*time.Second).Should(Receive())
			Expect(connections.Load()).To(BeNumerically(">=", 2))
			result, err := call(client, "math", "add", 1, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(2.0))
		})
	})

	Context("When the client is discovered", func() {
		It("should fire the heartbeat locally", func() {
			mock := clock.NewMock()
			server := newTestServer(ctx)
			client := serveClient(server, WithClock(mock), HeartbeatInterval(time.Second))
			defer func() { _ = client.Stop() }()
			var beats atomic.Int32
			client.Hook("onHeartbeat").Attach(&testTarget{name: "root"}, func(args ...interface{}) {
				if len(args) == 0 {
					beats.Add(1)
				}
			})
			for i := int32(1); i <= 3; i++ {
				mock.Add(time.Second)
				Eventually(beats.Load).Should(Equal(i))
			}
		})
	})
})

// mute answers the handshake and ignores everything after it
func mute(conn *pipeConnection) {
	if _, err := readFirstJSONFrame(conn, &bytes.Buffer{}); err != nil {
		return
	}
	if err := writeHandshakeFrame(conn, handshakeResponse{}); err != nil {
		return
	}
	_, _ = io.Copy(io.Discard, conn)
}
