package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/goturn/internal/kv"
)

const DefaultEditWindow = 10 * time.Minute

// EditWindow marks the period after an order submission during which the
// order may still be amended. Store failures read as "closed".
type EditWindow struct {
	store    kv.Store
	duration time.Duration
}

func NewEditWindow(store kv.Store, d time.Duration) *EditWindow {
	if d <= 0 {
		d = DefaultEditWindow
	}
	return &EditWindow{store: store, duration: d}
}

// Open starts the window; d <= 0 uses the configured duration.
func (e *EditWindow) Open(ctx context.Context, id string, d time.Duration) error {
	if d <= 0 {
		d = e.duration
	}
	if err := e.store.Set(ctx, EditWindowKey(id), "1", d); err != nil {
		slog.Warn("edit window: open failed", "conversation", Normalize(id), "error", err)
		return err
	}
	slog.Info("edit window: opened", "conversation", Normalize(id), "duration", d)
	return nil
}

func (e *EditWindow) IsOpen(ctx context.Context, id string) bool {
	ok, err := e.store.Exists(ctx, EditWindowKey(id))
	if err != nil {
		return false
	}
	return ok
}
