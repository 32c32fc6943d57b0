package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackOffOn429AndRecover(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host := u.Host

	limiters := &RateLimiters{RPS: 100, Burst: 10}
	client := &http.Client{Transport: limiters.RoundTripper(http.DefaultTransport, host)}

	for i := 0; i < 3; i++ {
		res, err := client.Get(srv.URL)
		require.NoError(t, err)
		res.Body.Close()
	}
	// only once per round tripper
	assert.Equal(t, 50.0, limiters.Limit(host))

	limiters.Recover(host)
	assert.Equal(t, 75.0, limiters.Limit(host))
	limiters.Recover(host)
	assert.Equal(t, 100.0, limiters.Limit(host), "never above RPS")
}

func TestLimitIsClipped(t *testing.T) {
	limiters := &RateLimiters{RPS: 0.15, Burst: 1}
	limiters.backOff("slow.example")
	assert.Equal(t, minLimit, limiters.Limit("slow.example"))
}

func TestRecoverUnknownHostIsNoop(t *testing.T) {
	limiters := &RateLimiters{RPS: 10, Burst: 1}
	limiters.Recover("nowhere.example")
	limiters.mu.Lock()
	defer limiters.mu.Unlock()
	assert.Empty(t, limiters.perHost)
}
