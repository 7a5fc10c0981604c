package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLocalhostURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		uri  string
		want bool
	}{
		{name: "localhost host", uri: "http://localhost:8080/meta.json", want: true},
		{name: "loopback address", uri: "http://127.0.0.1/meta.json", want: true},
		{name: "loopback range", uri: "http://127.1.2.3:9000/meta.json", want: true},
		{name: "uppercase localhost", uri: "http://LOCALHOST/meta.json", want: true},
		{name: "external host", uri: "https://meta.example.com/p1.json", want: false},
		{name: "empty", uri: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, IsLocalhostURI(tt.uri))
		})
	}
}

func TestIsExternalURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		uri            string
		allowLocalhost bool
		want           bool
	}{
		{name: "https with host", uri: "https://meta.example.com/p1.json", want: true},
		{name: "http with host", uri: "http://meta.example.com/p1.json", want: true},
		{name: "missing scheme", uri: "meta.example.com/p1.json", want: false},
		{name: "relative path", uri: "/var/meta/p1.json", want: false},
		{name: "empty", uri: "", want: false},
		{name: "scheme only", uri: "https://", want: false},
		{name: "localhost denied by default", uri: "http://localhost:8080/meta.json", want: false},
		{name: "localhost allowed with override", uri: "http://localhost:8080/meta.json", allowLocalhost: true, want: true},
		{name: "loopback denied by default", uri: "http://127.0.0.1/meta.json", want: false},
		{name: "loopback allowed with override", uri: "http://127.0.0.1/meta.json", allowLocalhost: true, want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, IsExternalURI(tt.uri, tt.allowLocalhost))
		})
	}
}
