package webstorage

import (
	"context"
	"log/slog"

	"github.com/ruteri/device-share-storage/interfaces"
	"github.com/ruteri/device-share-storage/permissions"
	"github.com/ruteri/device-share-storage/storage"
)

// NewFromEnvironment builds both store adapters over env and a permission
// tracker fed by the secondary store's capability query. The tracker's
// subscription lives as long as ctx.
func NewFromEnvironment(ctx context.Context, env interfaces.HostEnvironment, log *slog.Logger, opts ...Option) (*Module, *permissions.Tracker) {
	if log == nil {
		log = slog.Default()
	}
	primary := storage.NewLocalStorageBackend(env, log.With("component", "primary"))
	secondary := storage.NewFileStorageBackend(env, log.With("component", "secondary"))
	tracker := permissions.NewTracker(ctx, secondary, log.With("component", "permissions"))

	return NewModule(primary, secondary, tracker, log, opts...), tracker
}
