package sdkhost

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/device-share-storage/interfaces"
)

// ErrNoShares is returned by Recorder for operations that need share material.
var ErrNoShares = errors.New("host holds no shares")

// Recorder is a share host for stand-alone deployments such as the HTTP
// server: it keeps share descriptions and holds no shares of its own.
type Recorder struct {
	mu           sync.Mutex
	lookupKey    interfaces.StorageKey
	descriptions []Description
	log          *slog.Logger
}

var _ interfaces.ShareHost = (*Recorder)(nil)

// NewRecorder creates a recorder. lookupKey may be empty when callers always
// pass keys explicitly.
func NewRecorder(lookupKey interfaces.StorageKey, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{lookupKey: lookupKey, log: log}
}

func (r *Recorder) LookupKey(context.Context) (interfaces.StorageKey, error) {
	if r.lookupKey == "" {
		return "", errors.New("no lookup key configured")
	}
	return r.lookupKey, nil
}

func (r *Recorder) RecordShareDescription(_ context.Context, shareIndex, description string, encrypted bool) error {
	d := Description{
		ID:          uuid.NewString(),
		ShareIndex:  shareIndex,
		Description: description,
		Encrypted:   encrypted,
		RecordedAt:  time.Now(),
	}

	r.mu.Lock()
	r.descriptions = append(r.descriptions, d)
	r.mu.Unlock()

	r.log.Info("Share description recorded",
		slog.String("id", d.ID),
		slog.String("share_index", shareIndex),
		slog.String("description", description))
	return nil
}

// Descriptions returns every description recorded so far.
func (r *Recorder) Descriptions() []Description {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Description(nil), r.descriptions...)
}

func (r *Recorder) LatestPolynomialID(context.Context) (string, error) {
	return "", ErrNoShares
}

func (r *Recorder) ReconcileAgainstLatest(context.Context, interfaces.ShareRecord) (interfaces.ShareRecord, error) {
	return nil, ErrNoShares
}

func (r *Recorder) OutputShareRecord(context.Context, string) (interfaces.ShareRecord, error) {
	return nil, ErrNoShares
}

func (r *Recorder) InputShareRecord(context.Context, interfaces.ShareRecord) error {
	return ErrNoShares
}

func (r *Recorder) RegisterDeviceShareWriter(interfaces.DeviceShareWriter) {}
