package observability

import (
	"context"
	"time"
)

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

var (
	_ Recorder = NoopRecorder{}
	_ Tracer   = NoopTracer{}
)

func (NoopRecorder) RecordTick(context.Context, int, int, int, time.Duration) {}
func (NoopRecorder) RecordTransition(context.Context, string, bool) {}
func (NoopRecorder) RecordHandler(context.Context, string, string, string, time.Duration) {}
func (NoopRecorder) RecordQueueDepth(context.Context, string, int, int, int) {}
