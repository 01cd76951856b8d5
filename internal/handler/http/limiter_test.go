package httphandler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	testCases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "Scenario 1: forwarded chain", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.2:5000", want: "203.0.113.7"},
		{name: "Scenario 2: real ip", headers: map[string]string{"X-Real-IP": "198.51.100.4"}, remote: "10.0.0.2:5000", want: "198.51.100.4"},
		{name: "Scenario 3: remote addr", remote: "192.0.2.1:4321", want: "192.0.2.1"},
		{name: "Scenario 4: remote without port", remote: "192.0.2.9", want: "192.0.2.9"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/download", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}

			require.Equal(t, tc.want, ClientIP(r))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	l := NewRateLimiter(1, 2, testLog())
	l.now = func() time.Time { return now }

	h := l.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	call := func(ip string) int {
		r := httptest.NewRequest(http.MethodPost, "/api/download", nil)
		r.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		return rec.Code
	}

	require.Equal(t, http.StatusAccepted, call("203.0.113.1"))
	require.Equal(t, http.StatusAccepted, call("203.0.113.1"))
	require.Equal(t, http.StatusTooManyRequests, call("203.0.113.1"))
	require.Equal(t, http.StatusAccepted, call("203.0.113.2"))

	now = now.Add(time.Second)
	require.Equal(t, http.StatusAccepted, call("203.0.113.1"))

	now = now.Add(10 * time.Minute)
	call("203.0.113.3")
	l.mu.Lock()
	require.Len(t, l.visitors, 1)
	l.mu.Unlock()
}
