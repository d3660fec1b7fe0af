package queries

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-scptracker/components/tracker"
)

// WidgetStatusInput identifies one widget by its identifier text.
type WidgetStatusInput struct {
	WidgetID string
}

type statusService interface {
	Status(id tracker.WidgetID) (tracker.WidgetStatus, error)
}

// WidgetStatusQuery returns the poller status of one widget.
type WidgetStatusQuery struct {
	service statusService
}

// NewWidgetStatusQuery builds the query.
func NewWidgetStatusQuery(service statusService) *WidgetStatusQuery {
	return &WidgetStatusQuery{service: service}
}

var _ gocommand.Querier[WidgetStatusInput, tracker.WidgetStatus] = (*WidgetStatusQuery)(nil)

// Query resolves the status of input.WidgetID.
func (q *WidgetStatusQuery) Query(ctx context.Context, input WidgetStatusInput) (tracker.WidgetStatus, error) {
	if q.service == nil {
		return tracker.WidgetStatus{}, errors.New("widget status query requires service")
	}
	if input.WidgetID == "" {
		return tracker.WidgetStatus{}, errors.New("widget id required")
	}
	return q.service.Status(tracker.ParseWidgetID(input.WidgetID))
}
