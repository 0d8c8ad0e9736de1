package webglue

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type recordedSpan struct {
	name       string
	attributes map[attribute.Key]string
	status     codes.Code
	ended      bool
}

type recordingTracerProvider struct {
	noop.TracerProvider
	mx    sync.Mutex
	spans []*recordedSpan
}

func (p *recordingTracerProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return &recordingTracer{provider: p}
}

func (p *recordingTracerProvider) ended() []recordedSpan {
	p.mx.Lock()
	defer p.mx.Unlock()
	var spans []recordedSpan
	for _, s := range p.spans {
		if s.ended {
			spans = append(spans, *s)
		}
	}
	return spans
}

type recordingTracer struct {
	noop.Tracer
	provider *recordingTracerProvider
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	s := &recordingSpan{provider: t.provider, span: &recordedSpan{name: name, attributes: map[attribute.Key]string{}}}
	cfg := trace.NewSpanStartConfig(opts...)
	s.SetAttributes(cfg.Attributes()...)
	t.provider.mx.Lock()
	t.provider.spans = append(t.provider.spans, s.span)
	t.provider.mx.Unlock()
	return ctx, s
}

type recordingSpan struct {
	noop.Span
	provider *recordingTracerProvider
	span     *recordedSpan
}

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	s.provider.mx.Lock()
	defer s.provider.mx.Unlock()
	for _, a := range kv {
		s.span.attributes[a.Key] = a.Value.Emit()
	}
}

func (s *recordingSpan) SetStatus(code codes.Code, _ string) {
	s.provider.mx.Lock()
	defer s.provider.mx.Unlock()
	s.span.status = code
}

func (s *recordingSpan) End(...trace.SpanEndOption) {
	s.provider.mx.Lock()
	defer s.provider.mx.Unlock()
	s.span.ended = true
}

var _ = Describe("Tracing", func() {
	It("should record a span per call", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		tp := &recordingTracerProvider{}
		server := newTestServer(ctx, WithTracerProvider(tp), Modules(Module{
			API: map[string]Functions{"math": {
				"add":  func(a, b float64) float64 { return a + b },
				"fail": func() error { return errors.New("failed") },
			}},
		}))
		client := serveClient(server)
		defer func() { _ = client.Stop() }()

		_, err := call(client, "math", "add", 1, 2)
		Expect(err).NotTo(HaveOccurred())
		_, err = call(client, "math", "fail")
		Expect(err).To(HaveOccurred())

		Eventually(func() int { return len(tp.ended()) }).Should(Equal(2))
		spans := tp.ended()
		Expect(spans[0].name).To(Equal("webglue.call"))
		Expect(spans[0].attributes).To(HaveKeyWithValue(attribute.Key("webglue.fnc"), "add"))
		Expect(spans[0].status).To(Equal(codes.Unset))
		Expect(spans[1].attributes).To(HaveKeyWithValue(attribute.Key("webglue.error_kind"), string(KindFunctionFailed)))
		Expect(spans[1].status).To(Equal(codes.Error))
	})
})
