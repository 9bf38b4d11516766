package services

import (
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

func TestFallbackDecoder(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii", "Ward,Service Request Type", "Ward,Service Request Type"},
		{"latin1 byte", "caf\xe9", "café"},
		{"valid utf8 kept", "café ☕", "café ☕"},
		{"mixed", "Étobicoke \xc9tobicoke", "Étobicoke Étobicoke"},
		{"truncated sequence at eof", "abc\xe2\x98", "abcâ\u0098"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := transform.String(newFallbackDecoder(charmap.ISO8859_1), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFallbackDecoder_SplitReads(t *testing.T) {
	in := strings.Repeat("☕ caf\xe9 ", 50)
	r := transform.NewReader(iotest.OneByteReader(strings.NewReader(in)), newFallbackDecoder(charmap.ISO8859_1))
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("☕ café ", 50), string(got))
}
