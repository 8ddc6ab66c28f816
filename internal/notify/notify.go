// Package notify delivers workflow notifications.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// Sink receives notifications. Callers treat delivery as fire-and-forget.
type Sink interface {
	Notify(ctx context.Context, n model.Notification) error
}

// StoreSink persists notifications and logs them.
type StoreSink struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStoreSink returns a sink writing to the notifications table.
func NewStoreSink(db *sql.DB, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{db: db, logger: logger, now: time.Now}
}

func (s *StoreSink) Notify(ctx context.Context, n model.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	id, err := store.InsertNotification(ctx, s.db, n)
	if err != nil {
		return fmt.Errorf("storing notification: %w", err)
	}
	s.logger.Info("notification", "id", id, "tenant_id", n.TenantID, "audience", n.Audience, "message", n.Message)
	return nil
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, model.Notification) error { return nil }
