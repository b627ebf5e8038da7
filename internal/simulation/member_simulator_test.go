package simulation

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/live_polling_system/internal/auth"
	"github.com/Guizzs26/live_polling_system/internal/metrics"
	"github.com/Guizzs26/live_polling_system/internal/model"
	"github.com/Guizzs26/live_polling_system/internal/pubsub"
	"github.com/Guizzs26/live_polling_system/internal/server"
	"github.com/Guizzs26/live_polling_system/internal/session"
	"github.com/Guizzs26/live_polling_system/internal/store"
)

const members = 4

func TestSimulator_MembersAnswerEveryPoll(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	g, err := st.CreateGroup(ctx, model.Group{Code: "SIM1", Name: "Simulation"})
	require.NoError(t, err)
	require.NoError(t, st.AddMember(ctx, g.ID, "instructor", model.RoleAdmin))

	mgr := session.NewManager(session.Deps{
		Store:   st,
		Metrics: metrics.NewSessionMetrics(prometheus.NewRegistry(), "sim"),
	})
	verifier := auth.NewVerifier("sim-secret")
	srv := httptest.NewServer(server.NewRouter(server.Options{Manager: mgr, Groups: st, Verifier: verifier}))
	defer srv.Close()
	defer mgr.Shutdown(ctx)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	admin, _, err := websocket.Dial(ctx, wsURL+"/ws/groups/SIM1?token="+verifier.Sign("instructor"), nil)
	require.NoError(t, err)
	defer admin.Close(websocket.StatusNormalClosure, "")

	sim := New(Config{ServerURL: wsURL, GroupCode: "SIM1", Members: members, Signer: verifier})
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sim.Run(runCtx) }()

	require.Eventually(t, func() bool { return sim.Stats().Connected == members }, 5*time.Second, 10*time.Millisecond)

	adminSend(t, admin, pubsub.EventStartPoll, map[string]any{"text": "Pick", "type": "MULTIPLE_CHOICE", "options": []string{"x", "y"}})
	waitForResponses(t, admin, members)

	adminSend(t, admin, pubsub.EventStartPoll, map[string]any{"text": "Name a verb", "type": "FREE_RESPONSE"})
	waitForResponses(t, admin, members)
	adminSend(t, admin, pubsub.EventShareResults, map[string]any{})

	assert.Eventually(t, func() bool { return sim.Stats().Revotes >= 1 }, 5*time.Second, 10*time.Millisecond)

	stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("simulator did not stop")
	}

	stats := sim.Stats()
	assert.GreaterOrEqual(t, stats.Answers, int64(2*members))
	assert.Len(t, st.Polls(g.ID), 1, "starting the second poll persisted the first")
}

func adminSend(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	msg, err := pubsub.Encode(eventType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, msg))
}

// waitForResponses reads admin updates until the live poll has n responders.
func waitForResponses(t *testing.T, conn *websocket.Conn, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		env, err := pubsub.Decode(data)
		require.NoError(t, err)
		if env.Type != pubsub.EventPollUpdates {
			continue
		}
		var v model.PollView
		require.NoError(t, json.Unmarshal(env.Payload, &v))
		if v.TotalResponses != nil && *v.TotalResponses == n {
			return
		}
	}
}
