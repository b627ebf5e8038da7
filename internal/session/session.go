// Package session runs one live polling session per group.
//
// Each Session is an actor: a single goroutine owns the group's poll and
// applies every command in arrival order, so no two mutations of one group
// ever interleave. Broadcasts only enqueue frames on connection buffers.
// Kafka publishing and the Redis mirror run on a second, per-session worker
// that never blocks the command loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Guizzs26/live_polling_system/internal/event"
	"github.com/Guizzs26/live_polling_system/internal/metrics"
	"github.com/Guizzs26/live_polling_system/internal/model"
	"github.com/Guizzs26/live_polling_system/internal/profanity"
	"github.com/Guizzs26/live_polling_system/internal/pubsub"
	"github.com/Guizzs26/live_polling_system/internal/store"
)

const (
	effectTimeout = 5 * time.Second

	defaultAutoEndRetry = 10 * time.Second
	maxAutoEndRetry     = 5 * time.Minute
)

type ProfanityChecker interface {
	Check(text string) []string
}

// Deps are the collaborators shared by every session of a Manager. Store is
// required; Live may be nil.
type Deps struct {
	Store          store.Store
	Live           store.LiveStore
	Publisher      event.Publisher
	Filter         ProfanityChecker
	Metrics        *metrics.SessionMetrics
	Logger         *slog.Logger
	PersistTimeout time.Duration
	// AutoEndRetry is the first delay before retrying to persist the poll of
	// a group everyone left. It doubles up to five minutes.
	AutoEndRetry time.Duration
	Now          func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Publisher == nil {
		d.Publisher = event.NopPublisher{}
	}
	if d.Filter == nil {
		d.Filter = profanity.New()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewSessionMetrics(prometheus.NewRegistry(), "polling")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.PersistTimeout <= 0 {
		d.PersistTimeout = 5 * time.Second
	}
	if d.AutoEndRetry <= 0 {
		d.AutoEndRetry = defaultAutoEndRetry
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

type Session struct {
	group    model.Group
	deps     Deps
	logger   *slog.Logger
	registry *pubsub.Registry
	onEmpty  func(*Session)

	inbox   chan func()
	stopped chan struct{}
	live    atomic.Bool

	effects *effectQueue
	drained chan struct{}

	// owned by the loop goroutine
	current *model.Poll
	last    *model.Poll
	lastID  string
	closed  bool
}

func newSession(group model.Group, deps Deps, onEmpty func(*Session)) *Session {
	logger := deps.Logger.With("group", group.Code, "group_id", group.ID)
	s := &Session{
		group:    group,
		deps:     deps,
		logger:   logger,
		registry: pubsub.NewRegistry(logger),
		onEmpty:  onEmpty,
		inbox:    make(chan func()),
		stopped:  make(chan struct{}),
		effects:  newEffectQueue(),
		drained:  make(chan struct{}),
	}
	go s.loop()
	go s.runEffects()
	return s
}

func (s *Session) Group() model.Group { return s.group }

// IsLive reports whether a poll is running. Safe from any goroutine.
func (s *Session) IsLive() bool { return s.live.Load() }

// Done is closed once the session has torn down.
func (s *Session) Done() <-chan struct{} { return s.stopped }

// Wait blocks until the session is closed and its side effects are flushed.
func (s *Session) Wait(ctx context.Context) error {
	for _, ch := range []<-chan struct{}{s.stopped, s.drained} {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Session) loop() {
	defer close(s.stopped)
	for {
		fn := <-s.inbox
		fn()
		if s.closed {
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for it. Once fn is accepted it
// always runs to completion, even if ctx ends meanwhile.
func (s *Session) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case s.inbox <- wrapped:
	case <-s.stopped:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

func (s *Session) exec(ctx context.Context, fn func() error) error {
	var err error
	if doErr := s.do(ctx, func() { err = fn() }); doErr != nil {
		return doErr
	}
	return err
}

// Connect admits c and sends it the live poll as the viewer sees it, or a
// null poll/current when nothing is running.
func (s *Session) Connect(ctx context.Context, c pubsub.Conn) error {
	return s.exec(ctx, func() error {
		s.registry.Admit(c)
		s.deps.Metrics.Connections.WithLabelValues(string(c.Role())).Inc()

		var view *model.PollView
		if s.current != nil {
			view = s.current.View(c.ParticipantID(), c.Role())
		}
		s.registry.SendTo(c, pubsub.EventCurrentPoll, view)
		s.logger.Info("participant connected", "participant", c.ParticipantID(), "role", c.Role(), "conn", c.ID())
		return nil
	})
}

// Disconnect removes c. When it was the last connection, the live poll is
// ended and the session tears down. If that final persist fails, the
// session stays up holding the poll, and the error is returned.
func (s *Session) Disconnect(ctx context.Context, c pubsub.Conn) error {
	return s.exec(ctx, func() error {
		if !s.registry.Remove(c) {
			return nil
		}
		s.deps.Metrics.Connections.WithLabelValues(string(c.Role())).Dec()
		s.logger.Info("participant disconnected", "participant", c.ParticipantID(), "conn", c.ID())

		if !s.registry.IsEmpty() {
			return nil
		}
		if err := s.finishEmpty(ctx); err != nil {
			s.retryAutoEnd(s.deps.AutoEndRetry)
			return err
		}
		return nil
	})
}

// finishEmpty persists the live poll of a session nobody is connected to
// and tears it down. On failure the session keeps the poll.
func (s *Session) finishEmpty(ctx context.Context) error {
	if _, err := s.endCurrent(ctx); err != nil {
		s.deps.Metrics.AutoEndFailures.Inc()
		var perr *PersistError
		if errors.As(err, &perr) {
			s.logger.Error("auto-end of live poll failed, keeping session", "error", perr.Err, "retryable", perr.Retryable())
		} else {
			s.logger.Error("auto-end of live poll failed, keeping session", "error", err)
		}
		return err
	}
	s.teardown()
	if s.onEmpty != nil {
		s.onEmpty(s)
	}
	return nil
}

// retryAutoEnd tries finishEmpty again after delay, backing off, until it
// succeeds, someone joins, or the session is closed.
func (s *Session) retryAutoEnd(delay time.Duration) {
	time.AfterFunc(delay, func() {
		_ = s.do(context.Background(), func() {
			if s.closed || !s.registry.IsEmpty() {
				return
			}
			s.logger.Info("retrying auto-end of live poll", "after", delay)
			if err := s.finishEmpty(context.Background()); err != nil {
				s.retryAutoEnd(min(delay*2, maxAutoEndRetry))
			}
		})
	})
}

// StartPoll starts a new live poll, ending and persisting the current one
// first. If that persist fails nothing is started.
func (s *Session) StartPoll(ctx context.Context, caller pubsub.Conn, spec model.StartSpec) error {
	return s.exec(ctx, func() error {
		if caller.Role() != model.RoleAdmin {
			return ErrForbidden
		}
		poll, err := model.NewPoll(uuid.NewString(), spec, s.deps.Now())
		if err != nil {
			return err
		}
		if _, err := s.endCurrent(ctx); err != nil {
			return err
		}

		s.current = &poll
		s.live.Store(true)
		s.deps.Metrics.PollsStarted.WithLabelValues(string(poll.Type)).Inc()

		s.registry.Broadcast(pubsub.Members, pubsub.EventStartPoll, poll.View("", model.RoleMember))
		s.registry.Broadcast(pubsub.Admins, pubsub.EventStartPoll, poll.View("", model.RoleAdmin))

		s.setLive(poll.ID)
		s.publish(event.New(event.PollStarted, s.group).WithPoll(poll))
		s.logger.Info("poll started", "poll_id", poll.ID, "type", poll.Type, "choices", len(poll.AnswerChoices))
		return nil
	})
}

func (s *Session) livePoll(pollID string) (model.Poll, error) {
	if s.current == nil {
		return model.Poll{}, ErrNoLivePoll
	}
	if pollID != s.current.ID {
		return model.Poll{}, fmt.Errorf("%w: got %s, live is %s", ErrStalePoll, pollID, s.current.ID)
	}
	return *s.current, nil
}

// AnswerPoll records the caller's answer to the live poll pollID.
func (s *Session) AnswerPoll(ctx context.Context, caller pubsub.Conn, pollID string, choice model.Choice) error {
	return s.exec(ctx, func() error {
		p, err := s.livePoll(pollID)
		if err != nil {
			return err
		}
		if p.Type == model.FreeResponse {
			if terms := s.deps.Filter.Check(choice.Text); len(terms) > 0 {
				return &ProfanityError{Terms: terms}
			}
		}

		next, err := p.Answer(caller.ParticipantID(), choice)
		if err != nil {
			return err
		}
		s.current = &next
		s.deps.Metrics.Answers.WithLabelValues("answer").Inc()

		s.broadcastUpdate(next)
		s.registry.SendTo(caller, pubsub.EventCurrentPoll, next.View(caller.ParticipantID(), caller.Role()))
		s.mirror(next)
		return nil
	})
}

// UpvoteAnswer toggles the caller's upvote on a free-response answer.
// Upvoting an answer that no longer exists does nothing.
func (s *Session) UpvoteAnswer(ctx context.Context, caller pubsub.Conn, pollID, text string) error {
	return s.exec(ctx, func() error {
		p, err := s.livePoll(pollID)
		if err != nil {
			return err
		}
		next, changed, err := p.Upvote(caller.ParticipantID(), text)
		if err != nil {
			return err
		}
		if !changed {
			s.logger.Debug("upvote on missing answer ignored", "poll_id", pollID, "participant", caller.ParticipantID())
			return nil
		}
		s.current = &next
		s.deps.Metrics.Answers.WithLabelValues("upvote").Inc()

		s.broadcastUpdate(next)
		s.registry.SendTo(caller, pubsub.EventCurrentPoll, next.View(caller.ParticipantID(), caller.Role()))
		s.mirror(next)
		return nil
	})
}

// broadcastUpdate pushes tallies to admins, and to members when they are
// allowed to see them.
func (s *Session) broadcastUpdate(p model.Poll) {
	s.registry.Broadcast(pubsub.Admins, pubsub.EventPollUpdates, p.View("", model.RoleAdmin))
	if p.Type == model.FreeResponse || p.Shared() {
		s.registry.Broadcast(pubsub.Members, pubsub.EventShareResults, p.View("", model.RoleMember))
	}
}

// ShareResults reveals tallies to members: those of the live poll if one is
// running, otherwise those of the poll ended last.
func (s *Session) ShareResults(ctx context.Context, caller pubsub.Conn) error {
	return s.exec(ctx, func() error {
		if caller.Role() != model.RoleAdmin {
			return ErrForbidden
		}

		switch {
		case s.current != nil:
			next := s.current.Share()
			s.current = &next
			s.registry.Broadcast(pubsub.Members, pubsub.EventShareResults, next.View("", model.RoleMember))
			s.registry.Broadcast(pubsub.Admins, pubsub.EventPollUpdates, next.View("", model.RoleAdmin))
			s.publish(event.New(event.PollShared, s.group).WithPoll(next))
			s.logger.Info("live poll shared", "poll_id", next.ID)

		case s.last != nil:
			pctx, cancel := context.WithTimeout(ctx, s.deps.PersistTimeout)
			err := s.deps.Store.MarkShared(pctx, s.group.ID, s.lastID)
			cancel()
			if errors.Is(err, store.ErrNotFound) {
				s.last, s.lastID = nil, ""
				return fmt.Errorf("%w: %w", ErrNothingToShare, err)
			}
			if err != nil {
				return &PersistError{Err: err}
			}

			shared := s.last.Share()
			s.last = &shared
			view := shared.View("", model.RoleMember)
			view.PersistedID = s.lastID
			s.registry.Broadcast(pubsub.Members, pubsub.EventShareResults, view)

			ev := event.New(event.PollShared, s.group).WithPoll(shared)
			ev.PersistedID = s.lastID
			s.publish(ev)
			s.logger.Info("ended poll shared", "poll_id", shared.ID, "persisted_id", s.lastID)

		default:
			return ErrNothingToShare
		}
		return nil
	})
}

// EndPoll persists and clears the live poll, returning the persisted id.
// Without a live poll it does nothing and returns "".
func (s *Session) EndPoll(ctx context.Context, caller pubsub.Conn) (string, error) {
	var id string
	err := s.exec(ctx, func() error {
		if caller.Role() != model.RoleAdmin {
			return ErrForbidden
		}
		var err error
		id, err = s.endCurrent(ctx)
		return err
	})
	return id, err
}

func (s *Session) persist(ctx context.Context, p model.Poll) (string, error) {
	pctx, cancel := context.WithTimeout(ctx, s.deps.PersistTimeout)
	defer cancel()

	start := time.Now()
	id, err := s.deps.Store.CreatePoll(pctx, p.Record(s.group.ID, s.deps.Now()))
	s.deps.Metrics.PersistDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.deps.Metrics.PollsEnded.WithLabelValues("persist_failed").Inc()
		return "", &PersistError{Err: err}
	}
	return id, nil
}

// endCurrent finalizes the live poll. On a persist failure the poll stays
// current so ending it can be retried.
func (s *Session) endCurrent(ctx context.Context) (string, error) {
	if s.current == nil {
		return "", nil
	}
	p := *s.current

	id, err := s.persist(ctx, p)
	if err != nil {
		s.logger.Warn("failed to persist poll", "poll_id", p.ID, "error", err)
		return "", err
	}

	s.current = nil
	s.live.Store(false)
	s.last, s.lastID = &p, id
	s.deps.Metrics.PollsEnded.WithLabelValues("persisted").Inc()

	desc := p.Descriptor()
	desc.PersistedID = id
	s.registry.Broadcast(pubsub.Everyone, pubsub.EventEndPoll, desc)

	s.clearLive()
	ev := event.New(event.PollEnded, s.group).WithPoll(p)
	ev.PersistedID = id
	s.publish(ev)
	s.logger.Info("poll ended", "poll_id", p.ID, "persisted_id", id, "responses", p.TotalResponses())
	return id, nil
}

// DeletePoll removes a persisted poll and tells the group.
func (s *Session) DeletePoll(ctx context.Context, caller pubsub.Conn, persistedID string) error {
	return s.exec(ctx, func() error {
		if caller.Role() != model.RoleAdmin {
			return ErrForbidden
		}

		pctx, cancel := context.WithTimeout(ctx, s.deps.PersistTimeout)
		err := s.deps.Store.DeletePoll(pctx, s.group.ID, persistedID)
		cancel()
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrStalePoll, err)
		}
		if err != nil {
			return &PersistError{Err: err}
		}

		if s.lastID == persistedID {
			s.last, s.lastID = nil, ""
		}
		s.registry.Broadcast(pubsub.Everyone, pubsub.EventDeletePoll, DeletedPayload{PollID: persistedID})

		ev := event.New(event.PollDeleted, s.group)
		ev.PersistedID = persistedID
		s.publish(ev)
		s.logger.Info("persisted poll deleted", "persisted_id", persistedID)
		return nil
	})
}

// DeleteLivePoll discards the live poll without persisting it.
func (s *Session) DeleteLivePoll(ctx context.Context, caller pubsub.Conn) error {
	return s.exec(ctx, func() error {
		if caller.Role() != model.RoleAdmin {
			return ErrForbidden
		}
		if s.current == nil {
			return ErrNoLivePoll
		}
		s.discardCurrent()
		return nil
	})
}

func (s *Session) discardCurrent() {
	if s.current == nil {
		return
	}
	p := *s.current
	s.current = nil
	s.live.Store(false)
	s.deps.Metrics.PollsEnded.WithLabelValues("discarded").Inc()

	s.registry.Broadcast(pubsub.Everyone, pubsub.EventDeleteLivePoll, DeletedPayload{PollID: p.ID})

	s.clearLive()
	s.publish(event.New(event.PollDiscarded, s.group).WithPoll(p))
	s.logger.Info("live poll discarded", "poll_id", p.ID)
}

// CurrentPollView projects the live poll for one viewer, or nil.
func (s *Session) CurrentPollView(ctx context.Context, participantID string, role model.Role) (*model.PollView, error) {
	var view *model.PollView
	err := s.do(ctx, func() {
		if s.current != nil {
			view = s.current.View(participantID, role)
		}
	})
	return view, err
}

// Close ends the session: the live poll is persisted when persistLast is
// set and discarded otherwise, then every connection is dropped. A failed
// persist leaves the session running.
func (s *Session) Close(ctx context.Context, persistLast bool) error {
	return s.exec(ctx, func() error {
		if persistLast {
			if _, err := s.endCurrent(ctx); err != nil {
				return err
			}
		} else {
			s.discardCurrent()
		}
		s.teardown()
		return nil
	})
}

func (s *Session) teardown() {
	s.closed = true
	s.live.Store(false)
	for _, c := range s.registry.Snapshot(pubsub.Everyone) {
		s.deps.Metrics.Connections.WithLabelValues(string(c.Role())).Dec()
	}
	s.registry.CloseAll()

	s.clearLive()
	s.publish(event.New(event.GroupEnded, s.group))
	s.effects.close()
	s.logger.Info("session closed")
}

func (s *Session) enqueue(name string, fn func(context.Context) error) {
	s.effects.push(s.effect(name, false, fn))
}

func (s *Session) effect(name string, latest bool, fn func(context.Context) error) effect {
	return effect{
		name:   name,
		latest: latest,
		run: func(ctx context.Context) {
			if err := fn(ctx); err != nil {
				s.logger.Warn("side effect failed", "effect", name, "error", err)
			}
		},
	}
}

func (s *Session) runEffects() {
	defer close(s.drained)
	for {
		batch, ok := s.effects.take()
		if !ok {
			return
		}
		for _, e := range batch {
			ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
			e.run(ctx)
			cancel()
		}
	}
}

func (s *Session) publish(ev event.PollEvent) {
	s.enqueue(string(ev.Type), func(ctx context.Context) error {
		return s.deps.Publisher.Publish(ctx, ev)
	})
}

func (s *Session) setLive(pollID string) {
	if s.deps.Live == nil {
		return
	}
	s.enqueue("set_live", func(ctx context.Context) error {
		return s.deps.Live.SetLive(ctx, s.group.Code, pollID)
	})
}

func (s *Session) clearLive() {
	if s.deps.Live == nil {
		return
	}
	s.enqueue("clear_live", func(ctx context.Context) error {
		return s.deps.Live.ClearLive(ctx, s.group.Code)
	})
}

// mirror copies the tallies to the live store and announces the answer.
// Mirrors still queued behind a slow worker are replaced by the newest one.
func (s *Session) mirror(p model.Poll) {
	tallies := p.Tallies()
	ev := event.New(event.PollAnswered, s.group).WithPoll(p)
	replaced := s.effects.push(s.effect("mirror", true, func(ctx context.Context) error {
		var errs []error
		if s.deps.Live != nil {
			errs = append(errs, s.deps.Live.SetTallies(ctx, s.group.Code, tallies))
		}
		errs = append(errs, s.deps.Publisher.Publish(ctx, ev))
		return errors.Join(errs...)
	}))
	if replaced {
		s.deps.Metrics.CoalescedEffects.Inc()
	}
}
