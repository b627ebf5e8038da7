package store

import (
	"context"
	"errors"

	"github.com/Guizzs26/live_polling_system/internal/model"
)

var ErrNotFound = errors.New("not found")

// PollStore persists ended polls.
type PollStore interface {
	CreatePoll(ctx context.Context, rec model.PollRecord) (string, error)
	GetPoll(ctx context.Context, id string) (model.PollRecord, error)
	// DeletePoll and MarkShared only touch polls of groupID; a poll of
	// another group reports ErrNotFound.
	DeletePoll(ctx context.Context, groupID, id string) error
	MarkShared(ctx context.Context, groupID, id string) error
	DeleteGroupPolls(ctx context.Context, groupID string) error
}

// GroupStore resolves groups and their admin membership.
type GroupStore interface {
	CreateGroup(ctx context.Context, g model.Group) (model.Group, error)
	FindGroup(ctx context.Context, codeOrID string) (model.Group, error)
	DeleteGroup(ctx context.Context, groupID string) error
	AddMember(ctx context.Context, groupID, participantID string, role model.Role) error
	MemberRole(ctx context.Context, groupID, participantID string) (model.Role, error)
}

// Store is the full persistence collaborator.
type Store interface {
	PollStore
	GroupStore
	Close() error
}

// LiveStore mirrors which groups have a poll running, so liveness can be
// answered across server instances.
type LiveStore interface {
	SetLive(ctx context.Context, groupCode, pollID string) error
	ClearLive(ctx context.Context, groupCode string) error
	SetTallies(ctx context.Context, groupCode string, tallies map[string]int) error
	LiveCodes(ctx context.Context, codes []string) ([]string, error)
	Close() error
}
