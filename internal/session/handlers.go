package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Guizzs26/live_polling_system/internal/model"
	"github.com/Guizzs26/live_polling_system/internal/pubsub"
	"github.com/Guizzs26/live_polling_system/internal/store"
)

type handlerFunc func(ctx context.Context, s *Session, c pubsub.Conn, raw json.RawMessage) error

// handlers maps each client event to its decoder and session command.
var handlers = map[string]handlerFunc{
	pubsub.EventStartPoll: func(ctx context.Context, s *Session, c pubsub.Conn, raw json.RawMessage) error {
		p, err := decodePayload[StartPollPayload](raw)
		if err != nil {
			return err
		}
		return s.StartPoll(ctx, c, p.Spec())
	},
	pubsub.EventAnswerPoll: func(ctx context.Context, s *Session, c pubsub.Conn, raw json.RawMessage) error {
		p, err := decodePayload[AnswerPayload](raw)
		if err != nil {
			return err
		}
		return s.AnswerPoll(ctx, c, p.PollID, p.Choice())
	},
	pubsub.EventUpvoteAnswer: func(ctx context.Context, s *Session, c pubsub.Conn, raw json.RawMessage) error {
		p, err := decodePayload[UpvotePayload](raw)
		if err != nil {
			return err
		}
		return s.UpvoteAnswer(ctx, c, p.PollID, p.Text)
	},
	pubsub.EventShareResults: func(ctx context.Context, s *Session, c pubsub.Conn, raw json.RawMessage) error {
		if _, err := decodePayload[emptyPayload](raw); err != nil {
			return err
		}
		return s.ShareResults(ctx, c)
	},
	pubsub.EventEndPoll: func(ctx context.Context, s *Session, c pubsub.Conn, raw json.RawMessage) error {
		if _, err := decodePayload[emptyPayload](raw); err != nil {
			return err
		}
		_, err := s.EndPoll(ctx, c)
		return err
	},
	pubsub.EventDeletePoll: func(ctx context.Context, s *Session, c pubsub.Conn, raw json.RawMessage) error {
		p, err := decodePayload[DeletePollPayload](raw)
		if err != nil {
			return err
		}
		return s.DeletePoll(ctx, c, p.PollID)
	},
	pubsub.EventDeleteLivePoll: func(ctx context.Context, s *Session, c pubsub.Conn, raw json.RawMessage) error {
		if _, err := decodePayload[emptyPayload](raw); err != nil {
			return err
		}
		return s.DeleteLivePoll(ctx, c)
	},
}

// Handle dispatches one frame from c. Frames of one connection arrive here
// in receive order from its read pump. Failures never escape: they are
// logged and, where the client should know, answered with an error event.
func (s *Session) Handle(c pubsub.Conn, env pubsub.Envelope) {
	h, ok := handlers[env.Type]
	if !ok {
		s.reject(c, env.Type, ErrUnknownEvent)
		return
	}
	if err := h(context.Background(), s, c, env.Payload); err != nil {
		s.reject(c, env.Type, err)
	}
}

func (s *Session) reject(c pubsub.Conn, eventType string, err error) {
	log := s.logger.With("event", eventType, "participant", c.ParticipantID(), "conn", c.ID())

	var (
		profane *ProfanityError
		persist *PersistError
	)
	switch {
	case errors.Is(err, ErrForbidden):
		log.Warn("action forbidden", "role", c.Role())
		s.countRejection("forbidden")
		s.sendError(c, pubsub.ErrorPayload{Code: "forbidden", Message: "Only the group admin can do that."})

	case errors.Is(err, ErrNoLivePoll), errors.Is(err, ErrStalePoll), errors.Is(err, ErrNothingToShare),
		errors.Is(err, model.ErrUnknownChoice), errors.Is(err, store.ErrNotFound):
		// the next broadcast corrects the client's view
		log.Info("stale action ignored", "error", err)
		s.countRejection("stale")

	case errors.As(err, &profane):
		log.Info("answer rejected by profanity filter", "terms", profane.Terms)
		s.countRejection("profanity")
		s.sendError(c, pubsub.ErrorPayload{Code: "profanity", Message: "Your answer contains words that are not allowed.", Terms: profane.Terms})

	case errors.As(err, &persist):
		log.Error("persistence failed", "error", persist.Err)
		s.countRejection("persistence")
		s.sendError(c, pubsub.ErrorPayload{Code: "persistence_failed", Message: "Could not save the poll, try again.", Retryable: persist.Retryable()})

	case errors.Is(err, ErrSessionClosed):
		log.Info("action after session closed")

	case errors.Is(err, ErrUnknownEvent):
		log.Warn("unknown event")
		s.countRejection("unknown_event")
		s.sendError(c, pubsub.ErrorPayload{Code: "unknown_event", Message: "Unknown event " + eventType + "."})

	case errors.Is(err, ErrInvalidPayload), errors.Is(err, model.ErrInvalidPoll), errors.Is(err, model.ErrWrongPollType),
		errors.Is(err, model.ErrEmptyAnswer), errors.Is(err, model.ErrAnswerTooLong):
		log.Warn("invalid payload", "error", err)
		s.countRejection("invalid_payload")
		s.sendError(c, pubsub.ErrorPayload{Code: "invalid_payload", Message: err.Error()})

	default:
		log.Error("action failed", "error", err)
		s.countRejection("internal")
		s.sendError(c, pubsub.ErrorPayload{Code: "internal", Message: "Something went wrong."})
	}
}

func (s *Session) countRejection(reason string) {
	s.deps.Metrics.Rejections.WithLabelValues(reason).Inc()
}

func (s *Session) sendError(c pubsub.Conn, p pubsub.ErrorPayload) {
	s.registry.SendTo(c, pubsub.EventError, p)
}
