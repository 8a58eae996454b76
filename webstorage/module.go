package webstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/ruteri/device-share-storage/common"
	"github.com/ruteri/device-share-storage/interfaces"
	"github.com/ruteri/device-share-storage/storage"
)

// ModuleName identifies the module in share descriptions.
const ModuleName = "webStorage"

// ErrNoShareHost is returned by operations that need the wrapping SDK before
// SetModuleReferences was called.
var ErrNoShareHost = errors.New("share host not set")

// ShareDescription is the non-secret metadata recorded for a stored share.
type ShareDescription struct {
	Module           string `json:"module"`
	UserAgent        string `json:"userAgent"`
	DateAdded        int64  `json:"dateAdded"`
	CustomDeviceInfo string `json:"customDeviceInfo,omitempty"`
}

// Module persists the device share across sessions. Reads try the primary
// store, then the secondary store when the capability gate allows it.
type Module struct {
	primary   interfaces.ShareStore
	secondary interfaces.ShareStore
	gate      interfaces.CapabilityGate
	log       *slog.Logger

	userAgent string
	now       func() time.Time

	hostMu       sync.RWMutex
	host         interfaces.ShareHost
	registerOnce sync.Once
}

// Option customizes a Module.
type Option func(*Module)

// WithUserAgent sets the agent string recorded in share descriptions.
func WithUserAgent(ua string) Option {
	return func(m *Module) { m.userAgent = ua }
}

// WithClock replaces time.Now for description timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Module) { m.now = now }
}

// NewModule wires the two stores and the capability gate together.
func NewModule(primary, secondary interfaces.ShareStore, gate interfaces.CapabilityGate, log *slog.Logger, opts ...Option) *Module {
	if log == nil {
		log = slog.Default()
	}
	m := &Module{
		primary:   primary,
		secondary: secondary,
		gate:      gate,
		log:       log,
		userAgent: fmt.Sprintf("%s/%s (%s; %s)", common.PackageName, common.Version, runtime.GOOS, runtime.GOARCH),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetModuleReferences attaches the wrapping SDK and registers StoreDeviceShare
// as its device share writer. Registration happens once per module.
func (m *Module) SetModuleReferences(host interfaces.ShareHost) {
	m.hostMu.Lock()
	m.host = host
	m.hostMu.Unlock()

	m.registerOnce.Do(func() {
		host.RegisterDeviceShareWriter(m.StoreDeviceShare)
	})
}

// Initialize is the SDK module lifecycle hook; there is nothing to prepare.
func (m *Module) Initialize(context.Context) error {
	return nil
}

func (m *Module) shareHost() (interfaces.ShareHost, error) {
	m.hostMu.RLock()
	defer m.hostMu.RUnlock()
	if m.host == nil {
		return nil, ErrNoShareHost
	}
	return m.host, nil
}

// Write stores record on the primary store, then records a description of
// the share with the SDK. The secondary store is never written here. A
// description failure is returned even though the share itself was stored.
func (m *Module) Write(ctx context.Context, key interfaces.StorageKey, record interfaces.ShareRecord, deviceInfo map[string]any) error {
	host, err := m.shareHost()
	if err != nil {
		return err
	}

	if err := m.primary.Put(ctx, key, record); err != nil {
		return err
	}

	shareIndex, ok := record.ShareIndex()
	if !ok {
		return errors.New("share record has no share index")
	}

	description := ShareDescription{
		Module:    ModuleName,
		UserAgent: m.userAgent,
		DateAdded: m.now().UnixMilli(),
	}
	if deviceInfo != nil {
		info, err := json.Marshal(deviceInfo)
		if err != nil {
			return fmt.Errorf("failed to serialize device info: %w", err)
		}
		description.CustomDeviceInfo = string(info)
	}
	descriptionJSON, err := json.Marshal(description)
	if err != nil {
		return fmt.Errorf("failed to serialize share description: %w", err)
	}

	return host.RecordShareDescription(ctx, shareIndex, string(descriptionJSON), true)
}

// Read returns the record stored under key, from the primary store or, when
// that fails and the gate allows it, from the secondary store. The primary
// store is not backfilled. When both fail the returned error embeds both
// causes; a quota failure on the secondary store closes the gate for good.
func (m *Module) Read(ctx context.Context, key interfaces.StorageKey) (interfaces.ShareRecord, error) {
	record, primaryErr := m.primary.Get(ctx, key)
	if primaryErr == nil {
		return record, nil
	}

	if !m.gate.Usable() {
		m.log.Debug("Secondary store not usable, skipping",
			slog.String("backend_name", m.secondary.Name()),
			"err", primaryErr)
		return nil, interfaces.UnableToReadFromStorage(
			fmt.Sprintf("Error inputShareFromWebStorage: %s", interfaces.PrettyPrintError(primaryErr)),
			primaryErr)
	}

	record, secondaryErr := m.secondary.Get(ctx, key)
	if secondaryErr == nil {
		m.log.Info("Read share from secondary store",
			slog.String("backend_name", m.secondary.Name()),
			slog.String("primary_err", primaryErr.Error()))
		return record, nil
	}

	if storage.IsQuotaError(secondaryErr) {
		// The user refused storage; stop asking on every read.
		m.gate.Deny("secondary store quota exhausted")
	}

	m.log.Warn("All stores failed to read share",
		slog.String("primary_err", primaryErr.Error()),
		slog.String("secondary_err", secondaryErr.Error()))

	return nil, interfaces.UnableToReadFromStorage(
		fmt.Sprintf("Error inputShareFromWebStorage: %s and %s",
			interfaces.PrettyPrintError(primaryErr), interfaces.PrettyPrintError(secondaryErr)),
		primaryErr, secondaryErr)
}

// ExportToSecondaryStore writes record to the secondary store, which may
// mean a manual download. Errors are returned unmodified.
func (m *Module) ExportToSecondaryStore(ctx context.Context, key interfaces.StorageKey, record interfaces.ShareRecord) error {
	return m.secondary.Put(ctx, key, record)
}

// IsSecondaryStoreUsable reports the capability gate's current answer.
func (m *Module) IsSecondaryStoreUsable() bool {
	return m.gate.Usable()
}

// StoreDeviceShare is the device share writer registered with the SDK. The
// key is derived from the current account.
func (m *Module) StoreDeviceShare(ctx context.Context, record interfaces.ShareRecord, deviceInfo map[string]any) error {
	host, err := m.shareHost()
	if err != nil {
		return err
	}
	key, err := host.LookupKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to derive lookup key: %w", err)
	}
	return m.Write(ctx, key, record, deviceInfo)
}

// ExportShareIndex exports the SDK's share with the given index to the
// secondary store.
func (m *Module) ExportShareIndex(ctx context.Context, shareIndex string) error {
	host, err := m.shareHost()
	if err != nil {
		return err
	}
	key, err := host.LookupKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to derive lookup key: %w", err)
	}
	record, err := host.OutputShareRecord(ctx, shareIndex)
	if err != nil {
		return fmt.Errorf("failed to output share %s: %w", shareIndex, err)
	}
	return m.ExportToSecondaryStore(ctx, key, record)
}

// GetDeviceShare reads the device share of the current account.
func (m *Module) GetDeviceShare(ctx context.Context) (interfaces.ShareRecord, error) {
	host, err := m.shareHost()
	if err != nil {
		return nil, err
	}
	key, err := host.LookupKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to derive lookup key: %w", err)
	}
	return m.Read(ctx, key)
}

// InputShareFromWebStorage reads the device share, upgrades it to the latest
// polynomial generation when it is stale (storing the upgraded share on the
// primary store), and hands it to the SDK.
func (m *Module) InputShareFromWebStorage(ctx context.Context) error {
	host, err := m.shareHost()
	if err != nil {
		return err
	}

	record, err := m.GetDeviceShare(ctx)
	if err != nil {
		return err
	}

	latestID, err := host.LatestPolynomialID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest polynomial: %w", err)
	}

	if id, _ := record.PolynomialID(); id != latestID {
		latest, err := host.ReconcileAgainstLatest(ctx, record)
		if err != nil {
			return fmt.Errorf("failed to catch up share: %w", err)
		}
		key, err := host.LookupKey(ctx)
		if err != nil {
			return fmt.Errorf("failed to derive lookup key: %w", err)
		}
		if err := m.primary.Put(ctx, key, latest); err != nil {
			return err
		}
		m.log.Info("Device share caught up to latest polynomial",
			slog.String("from", id),
			slog.String("to", latestID))
		record = latest
	}

	return host.InputShareRecord(ctx, record)
}
