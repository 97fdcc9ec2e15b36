package compiler

import (
	"sync"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"
)

var traceOnce sync.Once

// T traces to the global syntax tracer. When no tracer has been installed
// a Go-log tracer that only reports errors is used.
func T() tracing.Trace {
	traceOnce.Do(func() {
		if gtrace.SyntaxTracer == nil {
			t := gologadapter.New()
			t.SetTraceLevel(tracing.LevelError)
			gtrace.SyntaxTracer = t
		}
	})
	return gtrace.SyntaxTracer
}
