package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/live_polling_system/internal/model"
	"github.com/Guizzs26/live_polling_system/internal/store"
)

func TestManager_StartNewGroupIsIdempotent(t *testing.T) {
	f := newFixture(t)

	a := f.mgr.StartNewGroup(f.group)
	b := f.mgr.StartNewGroup(f.group)
	assert.Same(t, a, b)
	assert.Equal(t, 1, f.mgr.Len())

	byCode, ok := f.mgr.FindSession(f.group.Code)
	require.True(t, ok)
	assert.Same(t, a, byCode)
	byID, ok := f.mgr.FindSession(f.group.ID)
	require.True(t, ok)
	assert.Same(t, a, byID)

	_, ok = f.mgr.FindSession("nope")
	assert.False(t, ok)
}

func TestManager_GroupsAreIndependent(t *testing.T) {
	f := newFixture(t)
	other, err := f.store.CreateGroup(bg, model.Group{Code: "CHM200", Name: "Chemistry"})
	require.NoError(t, err)

	s1, admin := f.join(t, "instructor", model.RoleAdmin)
	s2, err := f.mgr.Join(bg, other, newConn("instructor", model.RoleAdmin))
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)

	f.start(t, s1, admin, mcSpec("x", "y"))
	assert.True(t, f.mgr.IsLive(bg, f.group.Code))
	assert.False(t, f.mgr.IsLive(bg, other.Code))
	assert.Equal(t, 2, f.mgr.Len())
}

func TestManager_EndGroupPersistsLivePoll(t *testing.T) {
	f := newFixture(t)
	s, admin := f.join(t, "instructor", model.RoleAdmin)
	_, u1 := f.join(t, "u1", model.RoleMember)
	pollID := f.start(t, s, admin, mcSpec("x", "y"))
	require.NoError(t, s.AnswerPoll(bg, u1, pollID, model.Choice{Letter: "A"}))

	require.NoError(t, f.mgr.EndGroup(bg, f.group, true))

	assert.True(t, admin.isClosed())
	assert.True(t, u1.isClosed())
	assert.Equal(t, 0, f.mgr.Len())
	assert.Len(t, f.store.Polls(f.group.ID), 1)

	_, err := f.store.FindGroup(bg, f.group.ID)
	assert.NoError(t, err, "group survives a persisting end")
	assert.NoError(t, f.mgr.EndGroup(bg, f.group, true), "ending twice is harmless")
}

func TestManager_EndGroupWithoutPersistDeletesGroup(t *testing.T) {
	f := newFixture(t)
	s, admin := f.join(t, "instructor", model.RoleAdmin)

	f.start(t, s, admin, mcSpec("x", "y"))
	_, err := s.EndPoll(bg, admin)
	require.NoError(t, err)
	f.start(t, s, admin, frSpec())

	require.NoError(t, f.mgr.EndGroup(bg, f.group, false))

	assert.Equal(t, 0, f.mgr.Len())
	assert.Empty(t, f.store.Polls(f.group.ID))
	_, err = f.store.FindGroup(bg, f.group.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManager_EndGroupPersistFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	s, admin := f.join(t, "instructor", model.RoleAdmin)
	f.start(t, s, admin, mcSpec("x", "y"))

	f.store.failing.Store(true)
	var perr *PersistError
	require.ErrorAs(t, f.mgr.EndGroup(bg, f.group, true), &perr)
	assert.Equal(t, 1, f.mgr.Len())
	assert.False(t, admin.isClosed())
	assert.True(t, s.IsLive())
}

func TestManager_JoinAfterTeardownStartsFreshSession(t *testing.T) {
	f := newFixture(t)
	s1, admin := f.join(t, "instructor", model.RoleAdmin)
	require.NoError(t, s1.Disconnect(bg, admin))
	<-s1.Done()

	s2, _ := f.join(t, "instructor", model.RoleAdmin)
	assert.NotSame(t, s1, s2)
	assert.Equal(t, 1, f.mgr.Len())
}

func TestManager_JoinReplacesClosedEntry(t *testing.T) {
	f := newFixture(t)
	s1 := f.mgr.StartNewGroup(f.group)
	// closed without going through the manager, as when teardown races a join
	require.NoError(t, s1.Close(bg, true))

	s2, c := f.join(t, "u1", model.RoleMember)
	assert.NotSame(t, s1, s2)
	assert.Contains(t, c.types(), "poll/current")
}

func TestManager_LiveGroupsMergesLiveStore(t *testing.T) {
	f := newFixture(t)
	s, admin := f.join(t, "instructor", model.RoleAdmin)
	f.start(t, s, admin, mcSpec("x", "y"))

	// a group running on another instance
	require.NoError(t, f.live.SetLive(context.Background(), "REMOTE", "p-remote"))

	got := f.mgr.LiveGroups(bg, []string{"REMOTE", "IDLE", f.group.Code})
	assert.Equal(t, []string{"REMOTE", f.group.Code}, got)
	assert.True(t, f.mgr.IsLive(bg, "REMOTE"))
	assert.False(t, f.mgr.IsLive(bg, "IDLE"))
	assert.Empty(t, f.mgr.LiveGroups(bg, nil))
}

func TestManager_ShutdownPersistsEverything(t *testing.T) {
	f := newFixture(t)
	s, admin := f.join(t, "instructor", model.RoleAdmin)
	f.start(t, s, admin, mcSpec("x", "y"))

	f.mgr.Shutdown(bg)

	assert.Equal(t, 0, f.mgr.Len())
	assert.Len(t, f.store.Polls(f.group.ID), 1)
	assert.True(t, admin.isClosed())
	select {
	case <-s.Done():
	default:
		t.Fatal("session still running")
	}
}

func TestManager_ShutdownDiscardsWhenStorageIsDown(t *testing.T) {
	f := newFixture(t)
	s, admin := f.join(t, "instructor", model.RoleAdmin)
	f.start(t, s, admin, mcSpec("x", "y"))
	f.store.failing.Store(true)

	f.mgr.Shutdown(bg)

	assert.Equal(t, 0, f.mgr.Len())
	assert.Empty(t, f.store.Polls(f.group.ID))
	assert.True(t, admin.isClosed())
}

func TestNewManager_RequiresStore(t *testing.T) {
	assert.Panics(t, func() { NewManager(Deps{}) })
}
