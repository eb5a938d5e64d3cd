package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vaultServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		if r.URL.Path != "/v1/secret/data/attendance-relay" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestApplyVaultSecrets(t *testing.T) {
	const payload = `{"data":{"data":{"DIFY_API_KEY":"app-123","COMPREFACE_API_KEY":"cf-456","UNRELATED":"x"}}}`

	t.Run("disabled is a no-op", func(t *testing.T) {
		result, err := ApplyVaultSecrets(context.Background(), VaultConfig{})
		require.NoError(t, err)
		assert.False(t, result.Enabled)
	})

	t.Run("exports selected keys", func(t *testing.T) {
		server := vaultServer(t, payload)
		t.Setenv("DIFY_API_KEY", "")
		t.Setenv("COMPREFACE_API_KEY", "")
		t.Setenv("UNRELATED", "")

		result, err := ApplyVaultSecrets(context.Background(), VaultConfig{
			Enabled: true, Addr: server.URL, Token: "root", Mount: "secret",
			Path: "attendance-relay", KVVersion: 2, Keys: DefaultKeys,
		})

		require.NoError(t, err)
		assert.Equal(t, 2, result.Loaded)
		assert.Equal(t, "app-123", os.Getenv("DIFY_API_KEY"))
		assert.Equal(t, "cf-456", os.Getenv("COMPREFACE_API_KEY"))
		assert.Empty(t, os.Getenv("UNRELATED"))
	})

	t.Run("keeps existing values without overwrite", func(t *testing.T) {
		server := vaultServer(t, payload)
		t.Setenv("DIFY_API_KEY", "from-env")
		t.Setenv("COMPREFACE_API_KEY", "")

		result, err := ApplyVaultSecrets(context.Background(), VaultConfig{
			Enabled: true, Addr: server.URL, Token: "root", Mount: "secret",
			Path: "attendance-relay", KVVersion: 2, Keys: DefaultKeys,
		})

		require.NoError(t, err)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, "from-env", os.Getenv("DIFY_API_KEY"))
	})

	t.Run("surfaces vault errors", func(t *testing.T) {
		server := vaultServer(t, payload)

		_, err := ApplyVaultSecrets(context.Background(), VaultConfig{
			Enabled: true, Addr: server.URL, Token: "wrong", Mount: "secret",
			Path: "attendance-relay", KVVersion: 2,
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "permission denied")
	})

	t.Run("requires address and token", func(t *testing.T) {
		_, err := ApplyVaultSecrets(context.Background(), VaultConfig{Enabled: true})
		assert.Error(t, err)
	})
}

func TestLoadVaultConfigFromEnv(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "true")
	t.Setenv("VAULT_ADDR", "http://vault:8200")
	t.Setenv("VAULT_KV_VERSION", "1")
	t.Setenv("VAULT_KEYS", "DIFY_API_KEY, REDIS_PASSWORD")

	cfg := LoadVaultConfigFromEnv()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "secret", cfg.Mount)
	assert.Equal(t, "attendance-relay", cfg.Path)
	assert.Equal(t, 1, cfg.KVVersion)
	assert.Equal(t, []string{"DIFY_API_KEY", "REDIS_PASSWORD"}, cfg.Keys)
}

func TestBuildVaultURL(t *testing.T) {
	v2, err := buildVaultURL("http://vault:8200/", "/secret/", "/relay", 2)
	require.NoError(t, err)
	assert.Equal(t, "http://vault:8200/v1/secret/data/relay", v2)

	v1, err := buildVaultURL("http://vault:8200", "kv", "relay", 1)
	require.NoError(t, err)
	assert.Equal(t, "http://vault:8200/v1/kv/relay", v1)
}

func TestStringifyVaultValue(t *testing.T) {
	assert.Equal(t, "8787", stringifyVaultValue(float64(8787)))
	assert.Equal(t, "true", stringifyVaultValue(true))
	assert.Equal(t, `["a","b"]`, stringifyVaultValue([]interface{}{"a", "b"}))
}
