package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// TraceMethodCall starts tracing a method call. The call becomes a segment of
// the New Relic transaction in ctx, if any. When an application is attached
// to ctx, End records the call's latency as "<struct>.<method>/latency" and
// OnError counts failures as "<struct>.<method>/errors".
//
// The returned tracer is never nil and is safe to use without either.
func TraceMethodCall(ctx context.Context, structOrPackageName, methodName string) *MethodTracer {
	t := &MethodTracer{
		ctx:   ctx,
		name:  fmt.Sprintf("%s.%s", structOrPackageName, methodName),
		start: time.Now(),
	}

	if txn := newrelic.FromContext(ctx); txn != nil {
		t.txn = txn
		t.seg = txn.StartSegment(fmt.Sprintf("%s %s", structOrPackageName, methodName))
	}

	return t
}

// MethodTracer collects analytics for a single method call.
type MethodTracer struct {
	ctx   context.Context
	name  string
	start time.Time

	txn *newrelic.Transaction
	seg *newrelic.Segment
}

// AddAttribute adds a key-value pair metadata to the method trace
func (t *MethodTracer) AddAttribute(key string, value interface{}) {
	if t.seg != nil {
		t.seg.AddAttribute(key, value)
	}
}

// AddAttributes adds a set of key-value pair metadata to the method trace
func (t *MethodTracer) AddAttributes(attributes map[string]interface{}) {
	for key, value := range attributes {
		t.AddAttribute(key, value)
	}
}

// OnError observes an error within a method trace
func (t *MethodTracer) OnError(err error) {
	if err == nil {
		return
	}

	if t.txn != nil {
		t.txn.NoticeError(err)
	}
	RecordCount(t.ctx, t.name+"/errors", 1)
}

// End completes the trace and returns the elapsed time of the call.
func (t *MethodTracer) End() time.Duration {
	elapsed := time.Since(t.start)

	if t.seg != nil {
		t.seg.End()
	}
	RecordDuration(t.ctx, t.name+"/latency", elapsed)

	return elapsed
}
