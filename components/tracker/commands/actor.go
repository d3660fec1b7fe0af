package commands

import (
	"context"

	"github.com/goliatone/go-scptracker/components/tracker"
)

// Actor identifies who issued a command. It feeds activity events and
// carries the role used for permission checks.
type Actor struct {
	Role     tracker.Role `json:"role"`
	ActorID  string       `json:"actor_id"`
	UserID   string       `json:"user_id"`
	TenantID string       `json:"tenant_id"`
	Email    string       `json:"email"`
}

func (a Actor) context(ctx context.Context) context.Context {
	return tracker.ContextWithActivity(ctx, tracker.ActivityContext{
		ActorID:  a.ActorID,
		UserID:   a.UserID,
		TenantID: a.TenantID,
		Email:    a.Email,
	})
}

// ActorFromSession builds an Actor for a logged-in session.
func ActorFromSession(session tracker.Session) Actor {
	id := session.ID.String()
	return Actor{
		Role:    session.Role,
		ActorID: id,
		UserID:  id,
		Email:   session.Email,
	}
}
