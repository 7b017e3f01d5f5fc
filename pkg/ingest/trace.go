package ingest

import "time"

// OperationTrace captures per-stage timing for one IngestFile call.
type OperationTrace struct {
	Spans           []Span
	TotalDurationMs int64
}

// Span is a single timed stage within an ingest run: "chunk", "embed",
// "extract", or "build-graph".
type Span struct {
	Name       string
	DurationMs int64
	OK         bool
	Error      string
	Counters   map[string]int64
}

func newTrace() *OperationTrace {
	return &OperationTrace{Spans: make([]Span, 0, 4)}
}

func (t *OperationTrace) addSpan(span Span) {
	t.Spans = append(t.Spans, span)
	t.TotalDurationMs += span.DurationMs
}

type spanTimer struct {
	name  string
	start int64
	trace *OperationTrace
}

func newSpanTimer(name string, trace *OperationTrace) *spanTimer {
	return &spanTimer{name: name, start: timeNowMs(), trace: trace}
}

func (st *spanTimer) finish(ok bool, err error, counters map[string]int64) {
	if st.trace == nil {
		return
	}
	span := Span{Name: st.name, DurationMs: timeNowMs() - st.start, OK: ok, Counters: counters}
	if err != nil {
		span.Error = err.Error()
	}
	st.trace.addSpan(span)
}

func timeNowMs() int64 {
	return time.Now().UnixMilli()
}
