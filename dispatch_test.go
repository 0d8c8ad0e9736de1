package webglue

import (
	"context"
	"errors"
	"sync/atomic"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type recordingCheck struct {
	calls atomic.Int32
	last  atomic.Value
}

func (r *recordingCheck) check(reject map[string]string) CallCheck {
	return func(_ context.Context, state *ConnectionState, call *Call) error {
		r.calls.Add(1)
		r.last.Store(*call)
		if message, ok := reject[call.APIName+"."+call.FncName]; ok {
			return errors.New(message)
		}
		return nil
	}
}

var _ = Describe("Call dispatch", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		server  Server
		client  Client
		checks  *recordingCheck
		invoked atomic.Int32
	)
	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		checks = &recordingCheck{}
		invoked.Store(0)
		server = newTestServer(ctx, Modules(
			Module{
				API: map[string]Functions{
					"math": {
						"add": func(a, b float64) float64 { return a + b },
						"divmod": func(a, b int) (int, int) {
							return a / b, a % b
						},
						"sum": func(values ...int) int {
							sum := 0
							for _, v := range values {
								sum += v
							}
							return sum
						},
					},
					"admin": {
						"reset": func() { invoked.Add(1) },
					},
				},
				CheckCall: checks.check(map[string]string{"admin.reset": "not allowed"}),
			},
			Module{
				API: map[string]Functions{
					"misc": {
						"fail":  func() error { return errors.New("failed on purpose") },
						"panic": func() { panic("don't panic") },
						"whoami": func(ctx context.Context, state *ConnectionState) (string, error) {
							if ctx == nil {
								return "", errors.New("no context")
							}
							return state.ConnectionID(), nil
						},
						"remember": func(state *ConnectionState, value string) {
							state.Items().Store("value", value)
						},
						"recall": func(state *ConnectionState) interface{} {
							value, _ := state.Items().Load("value")
							return value
						},
						"greet": func(name string, greeting string) string {
							if greeting == "" {
								greeting = "Hello"
							}
							return greeting + " " + name
						},
					},
				},
			},
		))
		client = serveClient(server)
	})
	AfterEach(func() {
		_ = client.Stop()
		cancel()
	})

	Context("When a function succeeds", func() {
		It("should return its result", func() {
			result, err := call(client, "math", "add", 2, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(5.0))
		})
		It("should return several results as list", func() {
			result, err := call(client, "math", "divmod", 7, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal([]interface{}{3.0, 1.0}))
		})
		It("should pass all remaining arguments to a variadic function", func() {
			result, err := call(client, "math", "sum", 1, 2, 3, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(10.0))
		})
		It("should fill missing arguments with zero values", func() {
			result, err := call(client, "misc", "greet", "Bob")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal("Hello Bob"))
		})
		It("should pass context and connection state", func() {
			result, err := call(client, "misc", "whoami")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).NotTo(BeEmpty())
			_, err = call(client, "misc", "remember", "blue")
			Expect(err).NotTo(HaveOccurred())
			result, err = call(client, "misc", "recall")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal("blue"))
		})
		It("should keep the connection state per connection", func() {
			_, err := call(client, "misc", "remember", "blue")
			Expect(err).NotTo(HaveOccurred())
			other := serveClient(server)
			defer func() { _ = other.Stop() }()
			result, err := call(other, "misc", "recall")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeNil())
		})
		It("should run the call checks with the call", func() {
			_, err := call(client, "math", "add", 1, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(checks.calls.Load()).To(Equal(int32(1)))
			last := checks.last.Load().(Call)
			Expect(last.APIName).To(Equal("math"))
			Expect(last.FncName).To(Equal("add"))
			Expect(last.Args).To(Equal([]interface{}{1.0, 2.0}))
			Expect(last.API).To(HaveKey("add"))
			Expect(last.Fnc).NotTo(BeNil())
		})
	})

	Context("When the call can not be resolved", func() {
		It("should fail for an unknown API without running checks", func() {
			_, err := call(client, "physics", "add", 1, 2)
			Expect(err).To(MatchError(&CallError{Kind: KindUnknownAPI, Message: "There is no API physics"}))
			Expect(checks.calls.Load()).To(Equal(int32(0)))
		})
		It("should fail for an unknown function without running checks", func() {
			_, err := call(client, "math", "pow", 1, 2)
			Expect(err).To(MatchError(&CallError{Kind: KindUnknownFunction, Message: "There is no function pow in API math"}))
			Expect(checks.calls.Load()).To(Equal(int32(0)))
		})
	})

	Context("When a check rejects the call", func() {
		It("should not invoke the function", func() {
			_, err := call(client, "admin", "reset")
			Expect(err).To(MatchError(&CallError{Kind: KindCallCheckRejected, Message: "not allowed"}))
			Expect(invoked.Load()).To(Equal(int32(0)))
		})
		It("should reject the call when the check panics and keep serving", func() {
			var broken map[string]int
			panicking := newTestServer(ctx, Modules(Module{
				API: map[string]Functions{"math": {
					"add": func(a, b float64) float64 { return a + b },
					"sub": func(a, b float64) float64 { return a - b },
				}},
				CheckCall: func(_ context.Context, _ *ConnectionState, call *Call) error {
					if call.FncName == "add" {
						broken["add"]++
					}
					return nil
				},
			}))
			c := serveClient(panicking)
			defer func() { _ = c.Stop() }()
			_, err := call(c, "math", "add", 2, 3)
			Expect(errors.Is(err, &CallError{Kind: KindCallCheckRejected})).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("nil map"))
			result, err := call(c, "math", "sub", 5, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(2.0))
			Eventually(panicking.ConnectionCount).Should(Equal(1))
		})
	})

	Context("When the function fails", func() {
		It("should return the error message", func() {
			_, err := call(client, "misc", "fail")
			Expect(err).To(MatchError(&CallError{Kind: KindFunctionFailed, Message: "failed on purpose"}))
		})
		It("should return the panic as error", func() {
			_, err := call(client, "misc", "panic")
			Expect(errors.Is(err, &CallError{Kind: KindFunctionFailed})).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("don't panic"))
		})
		It("should reject surplus arguments", func() {
			_, err := call(client, "math", "add", 1, 2, 3)
			Expect(errors.Is(err, &CallError{Kind: KindInvalidArguments})).To(BeTrue())
		})
		It("should reject arguments of the wrong type", func() {
			_, err := call(client, "math", "add", "one", 2)
			Expect(errors.Is(err, &CallError{Kind: KindInvalidArguments})).To(BeTrue())
		})
	})

	Context("When the client discovered with version 1.0", func() {
		It("should send the error message without kind", func() {
			old := serveClient(server, ProtocolVersion("1.0"))
			defer func() { _ = old.Stop() }()
			_, err := call(old, "math", "pow")
			var callErr *CallError
			Expect(errors.As(err, &callErr)).To(BeTrue())
			Expect(callErr.Kind).To(BeEmpty())
			Expect(callErr.Message).To(Equal("There is no function pow in API math"))
		})
	})

	Context("When the client is not discovered", func() {
		It("should fail the call immediately", func() {
			c, err := newPipeClient(server)
			Expect(err).NotTo(HaveOccurred())
			result := <-c.Invoke("math", "add", 1, 2)
			Expect(result.Error).To(MatchError(ErrNotDiscovered))
			Expect(c.API("math")).To(BeNil())
		})
	})

	Context("When the discovered proxies are used", func() {
		It("should call the server function", func() {
			proxy := client.API("math")["add"]
			Expect(proxy).NotTo(BeNil())
			result := <-proxy(20, 22)
			Expect(result.Error).NotTo(HaveOccurred())
			Expect(result.Value).To(Equal(42.0))
		})
		It("should list the discovered names", func() {
			Expect(client.Discovery().API).To(Equal(map[string][]string{
				"admin": {"reset"},
				"math":  {"add", "divmod", "sum"},
				"misc":  {"fail", "greet", "panic", "recall", "remember", "whoami"},
			}))
		})
	})
})
