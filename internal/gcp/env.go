package gcp

import "os"

// Env resolves configuration keys. Tests pass a MapEnv instead of touching
// the process environment.
type Env func(key string) (string, bool)

// ProcessEnv reads the process environment.
var ProcessEnv Env = os.LookupEnv

// String returns the value of key, or fallback when key is unset. A key set
// to the empty string stays empty so that validation can reject it.
func (e Env) String(key, fallback string) string {
	if e == nil {
		e = ProcessEnv
	}
	if value, ok := e(key); ok {
		return value
	}
	return fallback
}

// MapEnv serves keys from m.
func MapEnv(m map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}
