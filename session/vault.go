package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// VaultStore keeps the session as a single secret in a Vault KV v2 mount.
type VaultStore struct {
	client    *api.Client
	mountPath string
	dataPath  string
	log       *slog.Logger

	// Vault has no read-modify-write primitive; merges are serialized in process.
	mu sync.Mutex
}

var _ interfaces.SessionStore = (*VaultStore)(nil)

// NewVaultStore creates a store writing to <mountPath>/data/<dataPath>.
func NewVaultStore(address, token, mountPath, dataPath string, log *slog.Logger) (*VaultStore, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Vault client: %v", interfaces.ErrConfiguration, err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")
	if mountPath == "" || dataPath == "" {
		return nil, fmt.Errorf("%w: vault mount and path are required", interfaces.ErrConfiguration)
	}

	return &VaultStore{
		client:    client,
		mountPath: mountPath,
		dataPath:  dataPath,
		log:       log,
	}, nil
}

func (s *VaultStore) secretPath() string {
	return fmt.Sprintf("%s/data/%s", s.mountPath, s.dataPath)
}

func (s *VaultStore) metadataPath() string {
	return fmt.Sprintf("%s/metadata/%s", s.mountPath, s.dataPath)
}

func (s *VaultStore) Save(ctx context.Context, patch *interfaces.AuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := s.read(ctx)
	if errors.Is(err, interfaces.ErrSessionNotFound) {
		merged = &interfaces.AuthSession{}
	} else if err != nil {
		return err
	}
	if patch != nil && patch.Nonce != "" && merged.Nonce != "" && patch.Nonce != merged.Nonce {
		// KV v2 keeps old versions; drop the previous login with them.
		if _, err := s.client.Logical().DeleteWithContext(ctx, s.metadataPath()); err != nil {
			s.log.Error("Failed to delete previous session from Vault", slog.String("path", s.metadataPath()), "err", err)
			return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
		}
	}
	merged.Merge(patch)

	content, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"session": string(content),
		},
	}
	if _, err := s.client.Logical().WriteWithContext(ctx, s.secretPath(), secretData); err != nil {
		s.log.Error("Failed to write session to Vault", slog.String("path", s.secretPath()), "err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *VaultStore) Load(ctx context.Context) (*interfaces.AuthSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

func (s *VaultStore) read(ctx context.Context) (*interfaces.AuthSession, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.secretPath())
	if err != nil {
		s.log.Error("Failed to read session from Vault", slog.String("path", s.secretPath()), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrSessionNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		// Deleted KV v2 versions come back with null data.
		return nil, interfaces.ErrSessionNotFound
	}
	content, ok := data["session"].(string)
	if !ok {
		return nil, fmt.Errorf("session key not found in Vault data")
	}

	session := &interfaces.AuthSession{}
	if err := json.Unmarshal([]byte(content), session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return session, nil
}

// Clear destroys every version of the secret.
func (s *VaultStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.client.Logical().DeleteWithContext(ctx, s.metadataPath()); err != nil {
		s.log.Error("Failed to delete session from Vault", slog.String("path", s.metadataPath()), "err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Available reports whether Vault is initialized and unsealed.
func (s *VaultStore) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := s.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		s.log.Debug("Vault health check failed", "err", err)
		return false
	}
	return health.Initialized && !health.Sealed
}
