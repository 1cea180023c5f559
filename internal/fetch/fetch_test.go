package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestClient_Do_SendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(Config{UserAgent: "test-agent"})
	resp, err := c.Do(context.Background(), Request{
		URL:     srv.URL,
		Headers: map[string]string{"X-Api-Key": "secret"},
		Accept:  "application/json",
	})

	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.ContentType)
}

func TestClient_Do_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusNotFound, true},
		{http.StatusForbidden, true},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewClient(Config{}).Do(context.Background(), Request{URL: srv.URL})
			require.Error(t, err)

			var fe *Error
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.status, fe.StatusCode)
			assert.Equal(t, tt.permanent, fe.Permanent)
			assert.Equal(t, !tt.permanent, IsRetryable(err))
		})
	}
}

func TestClient_Do_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewClient(Config{Timeout: 20 * time.Millisecond}).Do(context.Background(), Request{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestClient_Do_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	_, err := NewClient(Config{MaxBodyBytes: 5}).Do(context.Background(), Request{URL: srv.URL})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	var calls int32
	got, err := Retry(context.Background(), Policy{MaxAttempts: 3}, testLogger(), nil,
		func(ctx context.Context) (string, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return "", Transient("http://x", errors.New("connection reset"))
			}
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(3), calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	var attempts []int
	_, err := Retry(context.Background(), Policy{MaxAttempts: 3}, testLogger(),
		func(attempt int, err error) { attempts = append(attempts, attempt) },
		func(ctx context.Context) (int, error) {
			return 0, Transient("http://x", errors.New("boom"))
		})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	var calls int
	_, err := Retry(context.Background(), Policy{MaxAttempts: 5}, testLogger(), nil,
		func(ctx context.Context) (int, error) {
			calls++
			return 0, Permanent("http://x", errors.New("bad payload"))
		})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "after 1 attempts")
}

func TestRetry_ZeroAttemptsStillTriesOnce(t *testing.T) {
	var calls int
	_, _ = Retry(context.Background(), Policy{}, testLogger(), nil,
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("x")
		})
	assert.Equal(t, 1, calls)
}

func TestRetry_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Retry(ctx, Policy{MaxAttempts: 5, Delay: time.Second}, testLogger(), nil,
		func(ctx context.Context) (int, error) {
			return 0, Transient("http://x", errors.New("down"))
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{Delay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
	assert.Equal(t, 5*time.Second, p.Backoff(10))

	assert.Equal(t, time.Duration(0), Policy{}.Backoff(3))
}
