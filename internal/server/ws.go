package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/Guizzs26/live_polling_system/internal/model"
	"github.com/Guizzs26/live_polling_system/internal/pubsub"
	"github.com/Guizzs26/live_polling_system/internal/session"
	"github.com/Guizzs26/live_polling_system/internal/store"
)

// ServeWS upgrades a participant to a websocket bound to the group's session.
func (a *API) ServeWS(w http.ResponseWriter, r *http.Request) {
	participantID, err := a.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	group, ok := a.lookupGroup(r.Context(), w, chi.URLParam(r, "code"))
	if !ok {
		return
	}

	role, err := a.resolveRole(r.Context(), group, participantID)
	if err != nil {
		a.logger.Error("member lookup failed", "group", group.Code, "participant", participantID, "error", err)
		writeError(w, http.StatusInternalServerError, "member lookup failed")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.origins,
	})
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "group", group.Code, "error", err)
		return
	}

	client := pubsub.NewClient(conn, group.Code, participantID, role, a.logger)

	// the request context ends with the upgrade, so the join gets its own
	sess, err := a.mgr.Join(context.Background(), group, client)
	if err != nil {
		a.logger.Error("could not join group", "group", group.Code, "participant", participantID, "error", err)
		client.Close()
		return
	}

	a.logger.Info("client connected", "group", group.Code, "participant", participantID, "role", role, "conn", client.ID())

	go client.WritePump()
	client.ReadPump(
		func(c *pubsub.Client, env pubsub.Envelope) { sess.Handle(c, env) },
		func(c *pubsub.Client) {
			if err := sess.Disconnect(context.Background(), c); err != nil && !errors.Is(err, session.ErrSessionClosed) {
				a.logger.Warn("disconnect failed", "group", c.GroupCode(), "conn", c.ID(), "error", err)
			}
			a.logger.Info("client disconnected", "group", c.GroupCode(), "participant", c.ParticipantID(), "conn", c.ID())
		},
	)
}

// resolveRole returns the participant's stored role, enrolling unknown
// participants as members.
func (a *API) resolveRole(ctx context.Context, group model.Group, participantID string) (model.Role, error) {
	role, err := a.groups.MemberRole(ctx, group.ID, participantID)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if err := a.groups.AddMember(ctx, group.ID, participantID, model.RoleMember); err != nil {
		return "", err
	}
	return model.RoleMember, nil
}
