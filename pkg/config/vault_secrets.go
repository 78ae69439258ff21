package config

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// VaultSecretProvider resolves secrets from a Vault KV v2 mount before the
// caller falls back to the plain environment variable. Grounded in
// ajitpratap0-cryptofunk's hashicorp/vault/api dependency.
type VaultSecretProvider struct {
	client     *vault.Client
	mountPath  string
	secretPath string
	logger     *zap.Logger
}

// NewVaultSecretProvider dials Vault at addr using token, reading secrets
// from mountPath/secretPath (a KV v2 "data" path). Returns an error if the
// client cannot be constructed; a reachability failure at Load time is
// non-fatal (Load just reports the secret absent).
func NewVaultSecretProvider(addr, token, mountPath, secretPath string, logger *zap.Logger) (*VaultSecretProvider, error) {
	cfg := vault.DefaultConfig()
	cfg.Address = addr

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultSecretProvider{
		client:     client,
		mountPath:  mountPath,
		secretPath: secretPath,
		logger:     logger,
	}, nil
}

// Load implements SecretProvider.
func (p *VaultSecretProvider) Load(name string) (string, bool) {
	secret, err := p.client.KVv2(p.mountPath).Get(context.Background(), p.secretPath)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("vault secret lookup failed", zap.String("path", p.secretPath), zap.Error(err))
		}
		return "", false
	}
	val, ok := secret.Data[name]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	if !ok || str == "" {
		return "", false
	}
	return str, true
}
