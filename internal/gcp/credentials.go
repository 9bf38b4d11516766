package gcp

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ErrNoCredentials is returned when neither the key file nor the environment
// variable holds a service account key.
var ErrNoCredentials = errors.New("no service account credentials found")

// ServiceAccount is a loaded service account key.
type ServiceAccount struct {
	JSON        []byte
	ClientEmail string
	Source      string // where the key came from, for logging
}

// CredentialSource locates a service account key: a local key file first,
// then a base64 encoded JSON key in an environment variable.
type CredentialSource struct {
	FilePath string
	EnvVar   string

	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load returns the first key found. It returns ErrNoCredentials when the file
// is absent and the variable is unset or empty.
func (s CredentialSource) Load() (*ServiceAccount, error) {
	if s.FilePath != "" {
		data, err := os.ReadFile(s.FilePath)
		switch {
		case err == nil:
			return parseServiceAccount(data, s.FilePath)
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read credentials file %s: %w", s.FilePath, err)
		}
	}

	encoded, name := s.lookup()
	if encoded == "" {
		return nil, fmt.Errorf("%w: %s does not exist and %s is not set", ErrNoCredentials, s.FilePath, s.EnvVar)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return parseServiceAccount(decoded, "environment variable "+name)
}

// lookup reads EnvVar. Older deployments exported the key under the name
// padded with a space on each side, which is still honoured.
func (s CredentialSource) lookup() (string, string) {
	if s.EnvVar == "" {
		return "", ""
	}
	lookupEnv := s.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if v, ok := lookupEnv(s.EnvVar); ok && v != "" {
		return v, s.EnvVar
	}
	legacy := " " + s.EnvVar + " "
	if v, ok := lookupEnv(legacy); ok && v != "" {
		slog.Warn("Using credentials from the padded legacy variable name. Rename it.", "variable", fmt.Sprintf("%q", legacy))
		return v, fmt.Sprintf("%q", legacy)
	}
	return "", s.EnvVar
}

func parseServiceAccount(data []byte, source string) (*ServiceAccount, error) {
	var key struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("credentials from %s are not valid JSON: %w", source, err)
	}
	if key.Type != "service_account" {
		return nil, fmt.Errorf("credentials from %s have type %q, want service_account", source, key.Type)
	}
	return &ServiceAccount{JSON: data, ClientEmail: key.ClientEmail, Source: source}, nil
}
