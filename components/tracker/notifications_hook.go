package tracker

import (
	"context"
	"errors"
)

// NotificationsClient publishes widget events to an external system.
type NotificationsClient interface {
	PublishWidgetEvent(ctx context.Context, event WidgetEvent) error
}

// NotificationsHook forwards widget events to a notifications client.
type NotificationsHook struct {
	Client NotificationsClient
	// StatusOnly drops list and settings events.
	StatusOnly bool
}

// WidgetUpdated publishes the event.
func (h *NotificationsHook) WidgetUpdated(ctx context.Context, event WidgetEvent) error {
	if h == nil || h.Client == nil {
		return nil
	}
	if h.StatusOnly && event.Reason != ReasonStatus {
		return nil
	}
	return h.Client.PublishWidgetEvent(ctx, event)
}

// MultiHook delivers events to every hook and joins their errors.
type MultiHook []RefreshHook

// WidgetUpdated calls every hook in order.
func (m MultiHook) WidgetUpdated(ctx context.Context, event WidgetEvent) error {
	var errs []error
	for _, hook := range m {
		if hook == nil {
			continue
		}
		if err := hook.WidgetUpdated(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopRefreshHook struct{}

func (noopRefreshHook) WidgetUpdated(context.Context, WidgetEvent) error { return nil }
