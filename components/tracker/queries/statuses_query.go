package queries

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-scptracker/components/tracker"
)

// StatusesInput filters the dashboard statuses.
type StatusesInput struct {
	// Settled drops widgets still waiting for their first answer.
	Settled bool
}

type statusesService interface {
	Statuses() []tracker.WidgetStatus
}

// StatusesQuery lists the poller status of every widget in list order.
type StatusesQuery struct {
	service statusesService
}

// NewStatusesQuery builds the query.
func NewStatusesQuery(service statusesService) *StatusesQuery {
	return &StatusesQuery{service: service}
}

var _ gocommand.Querier[StatusesInput, []tracker.WidgetStatus] = (*StatusesQuery)(nil)

// Query returns the statuses, optionally only the settled ones.
func (q *StatusesQuery) Query(ctx context.Context, input StatusesInput) ([]tracker.WidgetStatus, error) {
	if q.service == nil {
		return nil, errors.New("statuses query requires service")
	}
	statuses := q.service.Statuses()
	if !input.Settled {
		return statuses, nil
	}
	out := statuses[:0]
	for _, status := range statuses {
		if status.Loading {
			continue
		}
		if status.Snapshot == nil && status.State != tracker.PollError {
			continue
		}
		out = append(out, status)
	}
	return out, nil
}
