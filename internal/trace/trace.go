// Package trace wires the debug-tracing toggle to OpenTelemetry spans.
//
// When enabled, every pipeline stage runs under a span and a line is
// printed as each span ends; when disabled, the no-op global tracer is
// handed out and nothing is paid at runtime.
package trace

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Output owns the tracer provider for one command invocation.
type Output struct {
	provider *sdktrace.TracerProvider
}

// NewOutput builds a span-printing Output when enabled; otherwise the
// returned Output hands out the global no-op tracer.
func NewOutput(enabled bool, w io.Writer) *Output {
	if !enabled {
		return &Output{}
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(&lineSpanProcessor{w: w}),
	)
	return &Output{provider: provider}
}

// Tracer returns a tracer for the named component.
func (o *Output) Tracer(name string) trace.Tracer {
	if o == nil || o.provider == nil {
		return otel.Tracer(name)
	}
	return o.provider.Tracer(name)
}

// Close flushes and shuts the provider down.
func (o *Output) Close() {
	if o == nil || o.provider == nil {
		return
	}
	_ = o.provider.Shutdown(context.Background())
}

// lineSpanProcessor prints one line per finished span.
type lineSpanProcessor struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *lineSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *lineSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	elapsed := s.EndTime().Sub(s.StartTime()).Round(time.Millisecond)
	p.mu.Lock()
	fmt.Fprintf(p.w, "trace: %s %s (%s)\n", s.Name(), s.Status().Code, elapsed)
	p.mu.Unlock()
}

func (p *lineSpanProcessor) Shutdown(context.Context) error   { return nil }
func (p *lineSpanProcessor) ForceFlush(context.Context) error { return nil }
