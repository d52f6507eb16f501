package engagement

import (
	"context"
	"fmt"

	"example.com/engagefeed/internal/models"
)

// Notifications lists the caller's notifications, newest first.
func (e *Engine) Notifications(ctx context.Context, caller string, unreadOnly bool) ([]models.Notification, error) {
	if caller == "" {
		return nil, ErrUnauthenticated
	}
	list, err := e.store.NotificationsFor(ctx, caller, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	return list, nil
}

// MarkRead flags one of the caller's notifications as read. Marking an
// already-read notification is a no-op.
func (e *Engine) MarkRead(ctx context.Context, caller, id string) (models.Notification, error) {
	if caller == "" {
		return models.Notification{}, ErrUnauthenticated
	}
	n, err := e.store.GetNotification(ctx, id)
	if err != nil {
		return models.Notification{}, notFound("notification", err)
	}
	if n.RecipientID != caller {
		return models.Notification{}, ErrForbidden
	}
	if n.Read {
		return n, nil
	}
	if err := e.store.MarkNotificationRead(ctx, n); err != nil {
		return models.Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	n.Read = true
	return n, nil
}
