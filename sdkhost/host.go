package sdkhost

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/device-share-storage/interfaces"
)

var (
	// ErrUnknownShare is returned for share indexes or generations the host never issued.
	ErrUnknownShare = errors.New("unknown share")

	// ErrNoWriter is returned when no device share writer was registered.
	ErrNoWriter = errors.New("no device share writer registered")
)

// ShareStore is the record format the host issues.
type ShareStore struct {
	Share        Share  `json:"share"`
	PolynomialID string `json:"polynomialID"`
}

// Share is one Shamir share and its index label.
type Share struct {
	Share      string `json:"share"`
	ShareIndex string `json:"shareIndex"`
}

// Description is a share description recorded by a storage module.
type Description struct {
	ID          string
	ShareIndex  string
	Description string
	Encrypted   bool
	RecordedAt  time.Time
}

// LocalHost is a self-contained share host. It splits an account secret
// with Shamir's scheme, issues share records, reconciles stale shares
// against the latest split and reconstructs the secret from input shares.
type LocalHost struct {
	mu sync.RWMutex

	accountKey *ecdsa.PrivateKey
	secret     []byte
	threshold  int
	total      int

	polynomialID string
	shares       map[string][]byte // shareIndex -> share of the latest split
	generations  map[string]bool   // every polynomial ID issued

	descriptions []Description
	inputs       map[string][]byte
	writer       interfaces.DeviceShareWriter

	log *slog.Logger
}

var _ interfaces.ShareHost = (*LocalHost)(nil)

// NewLocalHost splits secret into total shares, any threshold of which
// reconstruct it. The account key determines the storage lookup key.
func NewLocalHost(accountKey *ecdsa.PrivateKey, secret []byte, threshold, total int, log *slog.Logger) (*LocalHost, error) {
	if accountKey == nil {
		return nil, errors.New("account key is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("secret is required")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &LocalHost{
		accountKey:  accountKey,
		secret:      slices.Clone(secret),
		threshold:   threshold,
		total:       total,
		generations: make(map[string]bool),
		inputs:      make(map[string][]byte),
		log:         log,
	}
	if err := h.Refresh(); err != nil {
		return nil, err
	}
	return h, nil
}

// GenerateLocalHost creates a host with a fresh account key and a random
// 32-byte secret.
func GenerateLocalHost(threshold, total int, log *slog.Logger) (*LocalHost, error) {
	accountKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate account key: %w", err)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return NewLocalHost(accountKey, secret, threshold, total, log)
}

// Refresh re-splits the secret into a new polynomial generation. Shares of
// earlier generations become stale but can still be reconciled. Share
// indexes are assigned on the first split and carried over to later ones.
func (h *LocalHost) Refresh() error {
	parts, err := shamir.Split(h.secret, h.total, h.threshold)
	if err != nil {
		return fmt.Errorf("failed to split secret: %w", err)
	}
	polynomialID := hex.EncodeToString(crypto.Keccak256(parts...)[:16])

	h.mu.Lock()
	defer h.mu.Unlock()

	labels := make([]string, 0, len(h.shares))
	for idx := range h.shares {
		labels = append(labels, idx)
	}
	slices.Sort(labels)

	shares := make(map[string][]byte, len(parts))
	for i, part := range parts {
		if len(labels) == len(parts) {
			shares[labels[i]] = part
		} else {
			shares[shareIndexOf(part)] = part
		}
	}

	h.shares = shares
	h.polynomialID = polynomialID
	h.generations[polynomialID] = true
	h.inputs = make(map[string][]byte)

	h.log.Debug("Split secret into new polynomial",
		slog.String("polynomial_id", polynomialID),
		slog.Int("threshold", h.threshold),
		slog.Int("total", h.total))
	return nil
}

// shareIndexOf labels a share by its x-coordinate, stored as its last byte.
func shareIndexOf(part []byte) string {
	return hex.EncodeToString(part[len(part)-1:])
}

// ShareIndexes lists the indexes of the latest split, sorted.
func (h *LocalHost) ShareIndexes() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	indexes := make([]string, 0, len(h.shares))
	for idx := range h.shares {
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)
	return indexes
}

// LookupKey derives the storage key from the account public key.
func (h *LocalHost) LookupKey(context.Context) (interfaces.StorageKey, error) {
	return interfaces.LookupKeyFromPublicKey(&h.accountKey.PublicKey)
}

// RecordShareDescription keeps the description in memory.
func (h *LocalHost) RecordShareDescription(_ context.Context, shareIndex, description string, encrypted bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.shares[shareIndex]; !ok {
		return fmt.Errorf("%w: index %s", ErrUnknownShare, shareIndex)
	}
	h.descriptions = append(h.descriptions, Description{
		ID:          uuid.NewString(),
		ShareIndex:  shareIndex,
		Description: description,
		Encrypted:   encrypted,
		RecordedAt:  time.Now(),
	})
	return nil
}

// Descriptions returns the descriptions recorded for shareIndex.
func (h *LocalHost) Descriptions(shareIndex string) []Description {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Description
	for _, d := range h.descriptions {
		if d.ShareIndex == shareIndex {
			out = append(out, d)
		}
	}
	return out
}

// LatestPolynomialID returns the current generation.
func (h *LocalHost) LatestPolynomialID(context.Context) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.polynomialID, nil
}

// OutputShareRecord serializes the latest share with the given index.
func (h *LocalHost) OutputShareRecord(_ context.Context, shareIndex string) (interfaces.ShareRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.outputLocked(shareIndex)
}

func (h *LocalHost) outputLocked(shareIndex string) (interfaces.ShareRecord, error) {
	part, ok := h.shares[shareIndex]
	if !ok {
		return nil, fmt.Errorf("%w: index %s", ErrUnknownShare, shareIndex)
	}
	return interfaces.NewShareRecord(ShareStore{
		Share: Share{
			Share:      hex.EncodeToString(part),
			ShareIndex: shareIndex,
		},
		PolynomialID: h.polynomialID,
	})
}

// ReconcileAgainstLatest maps a share of an earlier generation onto the
// latest share with the same index.
func (h *LocalHost) ReconcileAgainstLatest(_ context.Context, record interfaces.ShareRecord) (interfaces.ShareRecord, error) {
	var store ShareStore
	if err := record.Decode(&store); err != nil {
		return nil, fmt.Errorf("invalid share record: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.generations[store.PolynomialID] {
		return nil, fmt.Errorf("%w: polynomial %s", ErrUnknownShare, store.PolynomialID)
	}
	if store.PolynomialID == h.polynomialID {
		return record, nil
	}
	return h.outputLocked(store.Share.ShareIndex)
}

// InputShareRecord accepts a share of the latest generation for reconstruction.
func (h *LocalHost) InputShareRecord(_ context.Context, record interfaces.ShareRecord) error {
	var store ShareStore
	if err := record.Decode(&store); err != nil {
		return fmt.Errorf("invalid share record: %w", err)
	}
	part, err := hex.DecodeString(store.Share.Share)
	if err != nil {
		return fmt.Errorf("invalid share encoding: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if store.PolynomialID != h.polynomialID {
		return fmt.Errorf("%w: share of stale polynomial %s", ErrUnknownShare, store.PolynomialID)
	}
	h.inputs[store.Share.ShareIndex] = part
	return nil
}

// InputShareIndex feeds a share the host holds itself, the way a user
// would provide a backup share.
func (h *LocalHost) InputShareIndex(shareIndex string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	part, ok := h.shares[shareIndex]
	if !ok {
		return fmt.Errorf("%w: index %s", ErrUnknownShare, shareIndex)
	}
	h.inputs[shareIndex] = part
	return nil
}

// Reconstruct combines the input shares once the threshold is met.
func (h *LocalHost) Reconstruct() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.inputs) < h.threshold {
		return nil, fmt.Errorf("need %d shares, have %d", h.threshold, len(h.inputs))
	}
	parts := make([][]byte, 0, len(h.inputs))
	for _, part := range h.inputs {
		parts = append(parts, part)
	}
	return shamir.Combine(parts)
}

// RegisterDeviceShareWriter installs the storage module's writer.
func (h *LocalHost) RegisterDeviceShareWriter(fn interfaces.DeviceShareWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writer = fn
}

// StoreDeviceShare persists the share with the given index through the
// registered writer.
func (h *LocalHost) StoreDeviceShare(ctx context.Context, shareIndex string, deviceInfo map[string]any) error {
	h.mu.RLock()
	writer := h.writer
	record, err := h.outputLocked(shareIndex)
	h.mu.RUnlock()
	if err != nil {
		return err
	}
	if writer == nil {
		return ErrNoWriter
	}
	return writer(ctx, record, deviceInfo)
}
