package main

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/voicequeue/internal/app/notification"
	"github.com/osa030/voicequeue/internal/app/session"
	"github.com/osa030/voicequeue/internal/infra/simplayer"
)

// simGateway connects sessions to simulated voice rooms and routes their
// announcements to the notification stream.
type simGateway struct {
	sim           *simplayer.Gateway
	notifications *notification.Manager
	formatter     *notification.Formatter
}

func (g *simGateway) Open(_ context.Context, sessionID string) (session.Transport, error) {
	p, c, r := g.sim.Open(sessionID)
	return session.Transport{
		Player:     p,
		Connection: c,
		Room:       r,
		Messenger:  notification.NewMessenger(sessionID, g.notifications, g.formatter),
	}, nil
}

func (g *simGateway) Release(sessionID string) {
	g.sim.Release(sessionID)
}

// SetListeners changes how many people are in the session's room.
func (g *simGateway) SetListeners(sessionID string, n int) error {
	room, ok := g.sim.Room(sessionID)
	if !ok {
		return errors.Wrapf(session.ErrSessionNotFound, "no voice room: session_id=%s", sessionID)
	}
	room.SetHumanCount(n)
	return nil
}
