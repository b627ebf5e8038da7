package processing

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/live_polling_system/internal/event"
	"github.com/Guizzs26/live_polling_system/internal/metrics"
	"github.com/Guizzs26/live_polling_system/internal/model"
)

type fakeConsumer struct {
	events []event.PollEvent
	errs   []error
}

func (f *fakeConsumer) ReadEvent(ctx context.Context) (event.PollEvent, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return event.PollEvent{}, err
		}
	}
	if len(f.events) == 0 {
		return event.PollEvent{}, io.EOF
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeConsumer) Close() error { return nil }

func TestEventProcessor_CountsAndDedupes(t *testing.T) {
	g := model.Group{ID: "g1", Code: "ABC"}
	started := event.New(event.PollStarted, g)
	ended := event.New(event.PollEnded, g)
	ended.Responses = 3
	ended.Tallies = map[string]int{"A": 2, "B": 1}

	c := &fakeConsumer{
		events: []event.PollEvent{started, started, ended, event.New(event.PollDeleted, g), ended},
		errs:   []error{nil, event.ErrMalformedEvent},
	}
	m := metrics.NewProcessorMetrics(prometheus.NewRegistry(), "test", "processor")
	ep := NewEventProcessor(c, m, nil)

	require.NoError(t, ep.Run(context.Background()))

	stats, ok := ep.Stats("g1")
	require.True(t, ok)
	assert.Equal(t, "ABC", stats.Code)
	assert.Equal(t, 1, stats.PollsStarted)
	assert.Equal(t, 1, stats.PollsEnded)
	assert.Equal(t, 1, stats.PollsDeleted)
	assert.Equal(t, 3, stats.Responses)
	assert.Equal(t, map[string]int{"A": 2, "B": 1}, stats.LastTallies)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDuplicate.WithLabelValues(string(event.PollStarted))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDuplicate.WithLabelValues(string(event.PollEnded))))
}

func TestEventProcessor_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &fakeConsumer{errs: []error{context.Canceled}}
	ep := NewEventProcessor(c, metrics.NewProcessorMetrics(prometheus.NewRegistry(), "test", "processor"), nil)

	done := make(chan error, 1)
	go func() { done <- ep.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}
}

func TestEventProcessor_DedupeWindowIsBounded(t *testing.T) {
	ep := NewEventProcessor(&fakeConsumer{}, metrics.NewProcessorMetrics(prometheus.NewRegistry(), "test", "processor"), nil)
	for i := 0; i < maxSeen+10; i++ {
		ep.process(event.New(event.PollAnswered, model.Group{ID: "g"}))
	}
	assert.Len(t, ep.seen, maxSeen)
	assert.Len(t, ep.seenOrder, maxSeen)
}
