package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTrace(t *testing.T) {
	tr := newTrace()
	assert.NotNil(t, tr)
	assert.NotNil(t, tr.Spans)
	assert.Equal(t, 0, len(tr.Spans))
	assert.Equal(t, int64(0), tr.TotalDurationMs)
}

func TestTraceAddSpan(t *testing.T) {
	tr := newTrace()

	tr.addSpan(Span{Name: "chunk", DurationMs: 100, OK: true, Counters: map[string]int64{"chunkCount": 5}})
	assert.Equal(t, 1, len(tr.Spans))
	assert.Equal(t, int64(100), tr.TotalDurationMs)
	assert.Equal(t, "chunk", tr.Spans[0].Name)

	tr.addSpan(Span{Name: "embed", DurationMs: 50, OK: false, Error: "embedding failed"})
	assert.Equal(t, 2, len(tr.Spans))
	assert.Equal(t, int64(150), tr.TotalDurationMs)
	assert.False(t, tr.Spans[1].OK)
	assert.Equal(t, "embedding failed", tr.Spans[1].Error)
}

func TestSpanTimerFinishRecordsErrorAndCounters(t *testing.T) {
	tr := newTrace()
	timer := newSpanTimer("extract", tr)
	timer.finish(false, errors.New("oracle timeout"), map[string]int64{"entitiesCreated": 0})

	assert.Equal(t, 1, len(tr.Spans))
	assert.False(t, tr.Spans[0].OK)
	assert.Equal(t, "oracle timeout", tr.Spans[0].Error)
	assert.Equal(t, int64(0), tr.Spans[0].Counters["entitiesCreated"])
}

func TestSpanTimerFinishWithNilTraceIsNoop(t *testing.T) {
	timer := newSpanTimer("chunk", nil)
	assert.NotPanics(t, func() {
		timer.finish(true, nil, nil)
	})
}
