package audit

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP_IgnoresForwardingHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/events", nil)
	req.RemoteAddr = "10.0.0.9:51234"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	req.Header.Set("X-Real-IP", "203.0.113.51")

	require.Equal(t, "10.0.0.9", ClientIP(req))
}

func TestClientIP_RemoteAddrWithoutPort(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/events", nil)
	req.RemoteAddr = "10.0.0.9"

	require.Equal(t, "10.0.0.9", ClientIP(req))
}
