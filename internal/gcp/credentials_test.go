package gcp

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = `{"type":"service_account","client_email":"sync@example.iam.gserviceaccount.com","private_key":"x"}`

func envFrom(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestCredentialSource_Load(t *testing.T) {
	t.Run("key file wins over environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "services_account.json")
		require.NoError(t, os.WriteFile(path, []byte(testKey), 0o600))

		src := CredentialSource{
			FilePath:  path,
			EnvVar:    "GOOGLE_SECRET",
			LookupEnv: envFrom(map[string]string{"GOOGLE_SECRET": "not base64"}),
		}
		acct, err := src.Load()
		require.NoError(t, err)
		assert.Equal(t, "sync@example.iam.gserviceaccount.com", acct.ClientEmail)
		assert.Equal(t, path, acct.Source)
	})

	t.Run("falls back to base64 environment variable", func(t *testing.T) {
		src := CredentialSource{
			FilePath:  filepath.Join(t.TempDir(), "missing.json"),
			EnvVar:    "GOOGLE_SECRET",
			LookupEnv: envFrom(map[string]string{"GOOGLE_SECRET": base64.StdEncoding.EncodeToString([]byte(testKey))}),
		}
		acct, err := src.Load()
		require.NoError(t, err)
		assert.JSONEq(t, testKey, string(acct.JSON))
		assert.Equal(t, "environment variable GOOGLE_SECRET", acct.Source)
	})

	t.Run("padded legacy variable name is honoured", func(t *testing.T) {
		src := CredentialSource{
			EnvVar:    "GOOGLE_SECRET",
			LookupEnv: envFrom(map[string]string{" GOOGLE_SECRET ": base64.StdEncoding.EncodeToString([]byte(testKey))}),
		}
		acct, err := src.Load()
		require.NoError(t, err)
		assert.Contains(t, acct.Source, `" GOOGLE_SECRET "`)
	})

	t.Run("nothing configured", func(t *testing.T) {
		src := CredentialSource{
			FilePath:  filepath.Join(t.TempDir(), "missing.json"),
			EnvVar:    "GOOGLE_SECRET",
			LookupEnv: envFrom(nil),
		}
		_, err := src.Load()
		assert.ErrorIs(t, err, ErrNoCredentials)
	})

	t.Run("invalid base64", func(t *testing.T) {
		src := CredentialSource{
			EnvVar:    "GOOGLE_SECRET",
			LookupEnv: envFrom(map[string]string{"GOOGLE_SECRET": "%%%"}),
		}
		_, err := src.Load()
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoCredentials)
	})

	t.Run("wrong key type", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "key.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"type":"authorized_user"}`), 0o600))
		_, err := CredentialSource{FilePath: path}.Load()
		assert.ErrorContains(t, err, "want service_account")
	})
}
