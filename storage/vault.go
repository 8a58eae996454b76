package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/device-share-storage/interfaces"
)

// VaultKeyValueStore implements a primary host store on HashiCorp Vault's KV
// v2 engine. Each item is one secret holding a single "value" field.
type VaultKeyValueStore struct {
	client    *api.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

var _ interfaces.KeyValueStore = (*VaultKeyValueStore)(nil)

// NewVaultKeyValueStore creates a Vault-backed store.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "device-shares")
//   - token: Vault token; empty means the client reads VAULT_TOKEN
//   - clientCert: optional TLS client certificate
//   - log: Structured logger for operational insights
func NewVaultKeyValueStore(address, mountPath, dataPath, token string, clientCert *tls.Certificate, log *slog.Logger) (*VaultKeyValueStore, error) {
	if log == nil {
		log = slog.Default()
	}
	config := api.DefaultConfig()
	config.Address = address

	if clientCert != nil {
		config.HttpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{*clientCert}},
			},
			Timeout: 30 * time.Second,
		}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &VaultKeyValueStore{
		client:    client,
		mountPath: strings.Trim(mountPath, "/"),
		dataPath:  strings.Trim(dataPath, "/"),
		log:       log,
	}, nil
}

func (s *VaultKeyValueStore) itemPath(kind, key string) string {
	return fmt.Sprintf("%s/%s/%s/%s", s.mountPath, kind, s.dataPath, key)
}

func (s *VaultKeyValueStore) SetItem(ctx context.Context, key, value string) error {
	path := s.itemPath("data", key)
	_, err := s.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"data": map[string]interface{}{
			"value": value,
		},
	})
	if err != nil {
		s.log.Error("Failed to write to Vault", slog.String("path", path), "err", err)
		return fmt.Errorf("failed to write to Vault: %w", err)
	}
	return nil
}

func (s *VaultKeyValueStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	path := s.itemPath("data", key)
	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", false, fmt.Errorf("failed to read from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", false, nil
	}

	// A deleted KV v2 version reads back with nil data.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", false, nil
	}
	value, ok := data["value"].(string)
	if !ok {
		return "", false, fmt.Errorf("invalid value format in Vault data at %s", path)
	}
	return value, true, nil
}

func (s *VaultKeyValueStore) RemoveItem(ctx context.Context, key string) error {
	path := s.itemPath("metadata", key)
	if _, err := s.client.Logical().DeleteWithContext(ctx, path); err != nil {
		return fmt.Errorf("failed to delete from Vault: %w", err)
	}
	return nil
}

func (s *VaultKeyValueStore) Len(ctx context.Context) (int, error) {
	path := fmt.Sprintf("%s/metadata/%s", s.mountPath, s.dataPath)
	secret, err := s.client.Logical().ListWithContext(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("failed to list Vault keys: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return 0, nil
	}
	keys, _ := secret.Data["keys"].([]interface{})
	return len(keys), nil
}

// Available checks that Vault is initialized and unsealed.
func (s *VaultKeyValueStore) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := s.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		s.log.Debug("Vault health check failed", "err", err)
		return false
	}
	if !health.Initialized || health.Sealed {
		s.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}
	return true
}
