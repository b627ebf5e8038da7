// Package simulation drives a group with fake members over real websocket
// connections, for load and soak testing a running server.
package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/Guizzs26/live_polling_system/internal/model"
	"github.com/Guizzs26/live_polling_system/internal/pubsub"
	"github.com/Guizzs26/live_polling_system/internal/session"
)

// revoteFrequency makes every n-th answer across all members vote again.
const revoteFrequency = 5

var words = []string{
	"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS",
	"goroutine", "channel", "mutex", "context", "interface",
}

// Signer issues the token a member presents when dialing.
type Signer interface {
	Sign(participantID string) string
}

type Config struct {
	// ServerURL is the websocket base, e.g. ws://localhost:8081.
	ServerURL string
	GroupCode string
	Members   int
	Signer    Signer
	// MaxThink bounds the random delay before a member answers.
	MaxThink time.Duration
	Logger   *slog.Logger
}

type Stats struct {
	Connected int64
	Answers   int64
	Revotes   int64
	Upvotes   int64
}

type Simulator struct {
	cfg    Config
	logger *slog.Logger

	answerCounter atomic.Int64
	connected     atomic.Int64
	answers       atomic.Int64
	revotes       atomic.Int64
	upvotes       atomic.Int64
}

func New(cfg Config) *Simulator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Members <= 0 {
		cfg.Members = 1
	}
	return &Simulator{cfg: cfg, logger: cfg.Logger.With("group", cfg.GroupCode)}
}

func (s *Simulator) Stats() Stats {
	return Stats{
		Connected: s.connected.Load(),
		Answers:   s.answers.Load(),
		Revotes:   s.revotes.Load(),
		Upvotes:   s.upvotes.Load(),
	}
}

// Run connects every member and plays until ctx is done or all members
// have been disconnected by the server.
func (s *Simulator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, s.cfg.Members)

	for i := range s.cfg.Members {
		m := &member{
			sim:   s,
			id:    fmt.Sprintf("sim-member-%d", i+1),
			voted: make(map[string]bool),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.run(ctx); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	if ctx.Err() != nil {
		s.logger.Info("simulator received shutdown signal", "stats", s.Stats())
		return nil
	}
	var all []error
	for err := range errs {
		all = append(all, err)
	}
	return errors.Join(all...)
}

type member struct {
	sim   *Simulator
	id    string
	conn  *websocket.Conn
	voted map[string]bool
}

func (m *member) run(ctx context.Context) error {
	url := fmt.Sprintf("%s/ws/groups/%s?token=%s",
		strings.TrimRight(m.sim.cfg.ServerURL, "/"), m.sim.cfg.GroupCode, m.sim.cfg.Signer.Sign(m.id))

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("member %s failed to connect: %w", m.id, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "simulation over")
	m.conn = conn
	m.sim.connected.Add(1)

	caughtUp := false
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.sim.logger.Info("member disconnected", "member", m.id, "error", err)
			return nil
		}
		env, err := pubsub.Decode(data)
		if err != nil {
			m.sim.logger.Warn("malformed frame", "member", m.id, "error", err)
			continue
		}

		switch env.Type {
		case pubsub.EventCurrentPoll:
			// later poll/current frames echo the member's own answers
			if caughtUp {
				continue
			}
			caughtUp = true
			if v, ok := decodeView(env.Payload); ok && v.State == model.StateLive {
				m.answer(ctx, v)
			}
		case pubsub.EventStartPoll:
			if v, ok := decodeView(env.Payload); ok {
				m.answer(ctx, v)
			}
		case pubsub.EventShareResults:
			if v, ok := decodeView(env.Payload); ok {
				m.upvote(ctx, v)
			}
		case pubsub.EventError:
			m.sim.logger.Warn("server rejected action", "member", m.id, "payload", string(env.Payload))
		}
	}
}

func (m *member) answer(ctx context.Context, v *model.PollView) {
	if !m.think(ctx) {
		return
	}
	first := pick(v)
	if !m.send(ctx, pubsub.EventAnswerPoll, withPoll(v.ID, first)) {
		return
	}
	m.sim.answers.Add(1)

	if m.sim.answerCounter.Add(1)%revoteFrequency != 0 {
		return
	}
	// change of mind, or a second free-response answer
	second := pick(v)
	for i := 0; i < 3 && second == first; i++ {
		second = pick(v)
	}
	m.sim.logger.Debug("re-voting on purpose", "member", m.id, "poll_id", v.ID)
	if m.send(ctx, pubsub.EventAnswerPoll, withPoll(v.ID, second)) {
		m.sim.revotes.Add(1)
	}
}

// upvote likes a random third of the shared free-response answers, once
// per poll.
func (m *member) upvote(ctx context.Context, v *model.PollView) {
	if v.Type != model.FreeResponse || v.State == model.StateEnded || m.voted[v.ID] {
		return
	}
	m.voted[v.ID] = true

	for _, c := range v.AnswerChoices {
		if rand.Intn(3) != 0 {
			continue
		}
		if m.send(ctx, pubsub.EventUpvoteAnswer, session.UpvotePayload{PollID: v.ID, Text: c.Text}) {
			m.sim.upvotes.Add(1)
		}
	}
}

func (m *member) think(ctx context.Context) bool {
	if m.sim.cfg.MaxThink <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(time.Duration(rand.Int63n(int64(m.sim.cfg.MaxThink)))):
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *member) send(ctx context.Context, eventType string, payload any) bool {
	msg, err := pubsub.Encode(eventType, payload)
	if err != nil {
		m.sim.logger.Error("encode failed", "member", m.id, "error", err)
		return false
	}
	writeCtx, cancel := context.WithTimeout(ctx, pubsub.WriteTimeout)
	defer cancel()
	if err := m.conn.Write(writeCtx, websocket.MessageText, msg); err != nil {
		if ctx.Err() == nil {
			m.sim.logger.Warn("failed to send", "member", m.id, "event", eventType, "error", err)
		}
		return false
	}
	return true
}

// pick chooses a random letter for multiple choice or a random word for
// free response.
func pick(v *model.PollView) model.Choice {
	if v.Type == model.MultipleChoice && len(v.AnswerChoices) > 0 {
		return model.Choice{Letter: v.AnswerChoices[rand.Intn(len(v.AnswerChoices))].Letter}
	}
	return model.Choice{Text: words[rand.Intn(len(words))]}
}

func withPoll(pollID string, c model.Choice) session.AnswerPayload {
	return session.AnswerPayload{PollID: pollID, Letter: c.Letter, Text: c.Text}
}

func decodeView(raw json.RawMessage) (*model.PollView, bool) {
	var v *model.PollView
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return nil, false
	}
	return v, true
}
