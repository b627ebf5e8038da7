// Package processing aggregates poll lifecycle events consumed from Kafka.
package processing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Guizzs26/live_polling_system/internal/event"
	"github.com/Guizzs26/live_polling_system/internal/metrics"
)

// maxSeen bounds the dedupe window. Kafka redelivers recent messages after a
// rebalance, not arbitrarily old ones.
const maxSeen = 10_000

// GroupStats are the running counters of one group.
type GroupStats struct {
	Code          string
	PollsStarted  int
	PollsEnded    int
	PollsDeleted  int
	PollsDiscard  int
	Responses     int // total responses across ended polls
	LastTallies   map[string]int
	SessionsEnded int
}

type EventProcessor struct {
	consumer event.Consumer
	metrics  *metrics.ProcessorMetrics
	logger   *slog.Logger
	interval time.Duration

	mu        sync.RWMutex
	seen      map[string]struct{}
	seenOrder []string
	groups    map[string]*GroupStats // by group id
}

func NewEventProcessor(c event.Consumer, m *metrics.ProcessorMetrics, logger *slog.Logger) *EventProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventProcessor{
		consumer: c,
		metrics:  m,
		logger:   logger,
		interval: 5 * time.Second,
		seen:     make(map[string]struct{}),
		groups:   make(map[string]*GroupStats),
	}
}

// Run consumes until ctx is canceled or the consumer reaches EOF.
func (ep *EventProcessor) Run(ctx context.Context) error {
	go ep.reportLoop(ctx)

	for {
		ev, err := ep.consumer.ReadEvent(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				ep.logger.Info("event processor stopping")
				return nil
			}
			if errors.Is(err, event.ErrMalformedEvent) {
				continue
			}
			ep.logger.Error("error reading event", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		ep.process(ev)
	}
}

func (ep *EventProcessor) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(ep.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ep.printResults()
		}
	}
}

func (ep *EventProcessor) process(ev event.PollEvent) {
	start := time.Now()
	defer func() {
		ep.metrics.ProcessingTime.WithLabelValues(string(ev.Type)).Observe(time.Since(start).Seconds())
	}()

	ep.mu.Lock()
	defer ep.mu.Unlock()

	if _, dup := ep.seen[ev.ID]; dup {
		ep.logger.Warn("duplicate event dropped", "event_id", ev.ID, "type", ev.Type, "group", ev.GroupCode)
		ep.metrics.EventsDuplicate.WithLabelValues(string(ev.Type)).Inc()
		return
	}
	ep.remember(ev.ID)
	ep.metrics.EventsProcessed.WithLabelValues(string(ev.Type)).Inc()

	g, ok := ep.groups[ev.GroupID]
	if !ok {
		g = &GroupStats{Code: ev.GroupCode}
		ep.groups[ev.GroupID] = g
	}

	switch ev.Type {
	case event.PollStarted:
		g.PollsStarted++
		g.LastTallies = nil
	case event.PollAnswered, event.PollShared:
		g.LastTallies = ev.Tallies
	case event.PollEnded:
		g.PollsEnded++
		g.Responses += ev.Responses
		g.LastTallies = ev.Tallies
	case event.PollDeleted:
		g.PollsDeleted++
	case event.PollDiscarded:
		g.PollsDiscard++
	case event.GroupEnded:
		g.SessionsEnded++
	default:
		ep.logger.Warn("unknown event type", "type", ev.Type, "event_id", ev.ID)
		return
	}
	ep.logger.Debug("event processed", "type", ev.Type, "group", ev.GroupCode, "poll_id", ev.LivePollID)
}

func (ep *EventProcessor) remember(id string) {
	ep.seen[id] = struct{}{}
	ep.seenOrder = append(ep.seenOrder, id)
	if len(ep.seenOrder) > maxSeen {
		delete(ep.seen, ep.seenOrder[0])
		ep.seenOrder = ep.seenOrder[1:]
	}
}

// Stats returns a copy of the counters of a group.
func (ep *EventProcessor) Stats(groupID string) (GroupStats, bool) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	g, ok := ep.groups[groupID]
	if !ok {
		return GroupStats{}, false
	}
	return *g, true
}

func (ep *EventProcessor) printResults() {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	if len(ep.groups) == 0 {
		ep.logger.Info("no poll events processed yet")
		return
	}

	ids := make([]string, 0, len(ep.groups))
	for id := range ep.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		g := ep.groups[id]
		ep.logger.Info("group summary",
			"group", g.Code,
			"polls_started", g.PollsStarted,
			"polls_ended", g.PollsEnded,
			"polls_deleted", g.PollsDeleted,
			"polls_discarded", g.PollsDiscard,
			"responses", g.Responses,
			"tallies", g.LastTallies,
		)
	}
}
