package webglue

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type eventRecorder struct {
	mx     sync.Mutex
	events [][]interface{}
}

func (r *eventRecorder) handler(args ...interface{}) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.events = append(r.events, args)
}

func (r *eventRecorder) received() [][]interface{} {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([][]interface{}(nil), r.events...)
}

var _ = Describe("Event dispatch", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		said   *EventSlot
		tick   *EventSlot
	)
	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		said = NewEventSlot()
		tick = NewEventSlot()
	})
	AfterEach(func() {
		cancel()
	})

	Context("When the server is not serving", func() {
		It("should ignore emitted events", func() {
			metrics := NewMetrics(prometheus.NewRegistry(), "")
			server := newTestServer(ctx, WithMetrics(metrics), Modules(Module{Events: Events{"tick": tick}}))
			tick.Emit(1)
			server.Emit("", "tick", 2)
			Expect(server.ConnectionCount()).To(Equal(0))
			Expect(testutil.CollectAndCount(metrics.eventsTotal)).To(Equal(0))
		})
	})

	Context("When event filters are registered", func() {
		It("should deliver an event only to connections all filters allow", func() {
			server := newTestServer(ctx, Modules(
				Module{
					API: map[string]Functions{
						"session": {"login": func(state *ConnectionState, user string) {
							state.Items().Store("user", user)
						}},
					},
					Events: Events{"tick": tick, "chat": Events{"said": said}},
					FilterEvent: func(_ context.Context, state *ConnectionState, e Emission) (bool, error) {
						if e.APIName != "chat" {
							return true, nil
						}
						_, ok := state.Items().Load("user")
						return ok, nil
					},
				},
				Module{
					FilterEvent: func(_ context.Context, state *ConnectionState, e Emission) (bool, error) {
						if user, ok := state.Items().Load("user"); ok && user == "mallory" {
							return false, errors.New("banned")
						}
						return true, nil
					},
				},
			))
			alice := serveClient(server)
			defer func() { _ = alice.Stop() }()
			anonymous := serveClient(server)
			defer func() { _ = anonymous.Stop() }()
			mallory := serveClient(server)
			defer func() { _ = mallory.Stop() }()
			_, err := call(alice, "session", "login", "alice")
			Expect(err).NotTo(HaveOccurred())
			_, err = call(mallory, "session", "login", "mallory")
			Expect(err).NotTo(HaveOccurred())
			Eventually(server.ConnectionCount).Should(Equal(3))

			recorders := map[string]*eventRecorder{}
			for name, client := range map[string]Client{"alice": alice, "anonymous": anonymous, "mallory": mallory} {
				r := &eventRecorder{}
				recorders[name] = r
				target := &testTarget{name: name}
				client.Hook("onChatSaid").Attach(target, r.handler)
				client.Hook("onTick").Attach(target, r.handler)
			}

			said.Emit("alice", "hello")
			tick.Emit(1)

			Eventually(recorders["alice"].received).Should(Equal([][]interface{}{{"alice", "hello"}, {1.0}}))
			Eventually(recorders["anonymous"].received).Should(Equal([][]interface{}{{1.0}}))
			Consistently(recorders["anonymous"].received, 200*time.Millisecond).Should(HaveLen(1))
			Consistently(recorders["mallory"].received, 200*time.Millisecond).Should(BeEmpty())
		})

		It("should treat a panicking filter as denial for that connection only", func() {
			metrics := NewMetrics(prometheus.NewRegistry(), "")
			server := newTestServer(ctx, WithMetrics(metrics), Modules(Module{
				API: map[string]Functions{
					"session": {"login": func(state *ConnectionState, user string) {
						state.Items().Store("user", user)
					}},
				},
				Events: Events{"tick": tick},
				FilterEvent: func(_ context.Context, state *ConnectionState, _ Emission) (bool, error) {
					if user, _ := state.Items().Load("user"); user == "mallory" {
						panic("filter blew up")
					}
					return true, nil
				},
			}))
			alice := serveClient(server)
			defer func() { _ = alice.Stop() }()
			mallory := serveClient(server)
			defer func() { _ = mallory.Stop() }()
			_, err := call(mallory, "session", "login", "mallory")
			Expect(err).NotTo(HaveOccurred())
			Eventually(server.ConnectionCount).Should(Equal(2))

			aliceEvents, malloryEvents := &eventRecorder{}, &eventRecorder{}
			alice.Hook("onTick").Attach(&testTarget{name: "alice"}, aliceEvents.handler)
			mallory.Hook("onTick").Attach(&testTarget{name: "mallory"}, malloryEvents.handler)

			tick.Emit(1)
			tick.Emit(2)

			Eventually(aliceEvents.received).Should(Equal([][]interface{}{{1.0}, {2.0}}))
			Consistently(malloryEvents.received, 200*time.Millisecond).Should(BeEmpty())
			Expect(testutil.ToFloat64(metrics.eventsTotal.WithLabelValues("", "tick", eventFiltered))).To(Equal(2.0))
			Expect(server.ConnectionCount()).To(Equal(2))
			_, err = call(mallory, "session", "login", "mallory")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Context("When a connection does not read its events", func() {
		It("should drop events for that connection only", func() {
			metrics := NewMetrics(prometheus.NewRegistry(), "")
			server := newTestServer(ctx, WithMetrics(metrics), EventBufferCapacity(1),
				Modules(Module{Events: Events{"tick": tick}}))
			reader := serveClient(server)
			defer func() { _ = reader.Stop() }()
			r := &eventRecorder{}
			reader.Hook("onTick").Attach(&testTarget{}, r.handler)

			// a connection which completes the handshake and then stops reading
			cliConn, srvConn := newClientServerConnections()
			defer func() { _ = cliConn.Close() }()
			go func() { _ = server.Serve(srvConn) }()
			Expect(writeHandshakeFrame(cliConn, handshakeRequest{Protocol: "json", Version: handshakeProtocolVersion})).To(Succeed())
			_, err := readFirstJSONFrame(cliConn, &bytes.Buffer{})
			Expect(err).NotTo(HaveOccurred())
			Eventually(server.ConnectionCount).Should(Equal(2))

			for i := 0; i < 10; i++ {
				tick.Emit(i)
				// the reading connection must keep up with its one slot buffer
				Eventually(func() int { return len(r.received()) }).Should(Equal(i + 1))
			}
			dropped := metrics.eventsTotal.WithLabelValues("", "tick", eventDropped)
			Eventually(func() float64 { return testutil.ToFloat64(dropped) }).Should(BeNumerically(">=", 8))
			Expect(testutil.ToFloat64(metrics.eventsTotal.WithLabelValues("", "tick", eventDelivered))).To(BeNumerically(">=", 10))
		})
	})
})
