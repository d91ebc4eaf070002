package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	cases := []struct {
		in   string
		want Address
		str  string
	}{
		{"127.0.0.1:9000", Address{Scheme: SchemeTCP, Host: "127.0.0.1", Port: 9000}, "127.0.0.1:9000"},
		{"tcp://renderer.local:9141", Address{Scheme: SchemeTCP, Host: "renderer.local", Port: 9141}, "renderer.local:9141"},
		{"renderer.local", Address{Scheme: SchemeTCP, Host: "renderer.local", Port: 9140}, "renderer.local:9140"},
		{":0", Address{Scheme: SchemeTCP, Port: 0}, ":0"},
		{"vsock://3:9140", Address{Scheme: SchemeVsock, CID: 3, Port: 9140}, "vsock://3:9140"},
		{"vsock://:5000", Address{Scheme: SchemeVsock, Port: 5000}, "vsock://0:5000"},
	}
	for _, tc := range cases {
		got, err := ParseAddress(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.str, got.String(), tc.in)
	}
}

func TestParseAddressErrors(t *testing.T) {
	for _, in := range []string{"udp://host:1", "host:http", "host:70000", "vsock://abc:1"} {
		_, err := ParseAddress(in)
		assert.Error(t, err, in)
	}
}
