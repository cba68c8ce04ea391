package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"golang.org/x/text/encoding/japanese"

	"github.com/ternarybob/tacklebox/internal/common"
	"github.com/ternarybob/tacklebox/internal/models"
)

func testFetchConfig() common.FetchConfig {
	cfg := common.NewDefaultConfig().Fetch
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.RequestTimeout = 5 * time.Second
	return cfg
}

func TestClient_Get(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h1>ビジョン 110</h1></body></html>")
	}))
	defer server.Close()

	client := NewClient(testFetchConfig(), arbor.NewLogger())
	page, err := client.Get(context.Background(), server.URL+"/products/vision")
	require.NoError(t, err)

	assert.Equal(t, 200, page.StatusCode)
	assert.Contains(t, string(page.Body), "ビジョン 110")
	assert.Equal(t, server.URL+"/products/vision", page.URL)
	assert.Contains(t, gotUA, "Mozilla")
}

func TestClient_Get_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(testFetchConfig(), arbor.NewLogger())
	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)

	var fe *models.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 404, fe.StatusCode)
	assert.False(t, fe.Temporary())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_Get_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	client := NewClient(testFetchConfig(), arbor.NewLogger())
	page, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(page.Body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Get_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testFetchConfig()
	cfg.MaxAttempts = 2
	client := NewClient(cfg, arbor.NewLogger())

	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, models.IsFetchError(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_Get_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 2048))
	}))
	defer server.Close()

	cfg := testFetchConfig()
	cfg.MaxBodySize = 1024
	client := NewClient(cfg, arbor.NewLogger())

	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestClient_Get_DecodesShiftJIS(t *testing.T) {
	body, err := japanese.ShiftJIS.NewEncoder().String(`<html><head><meta charset="Shift_JIS"></head><body>ベビーミノー</body></html>`)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	client := NewClient(testFetchConfig(), arbor.NewLogger())
	page, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, string(page.Body), "ベビーミノー")
}

func TestClient_Get_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	cfg := testFetchConfig()
	cfg.MaxAttempts = 1
	client := NewClient(cfg, arbor.NewLogger())

	_, err := client.Get(context.Background(), url)
	require.Error(t, err)
	assert.True(t, models.IsFetchError(err))
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := NewRetryPolicy(3, time.Millisecond, 10*time.Millisecond)

	tests := []struct {
		name    string
		attempt int
		err     error
		want    bool
	}{
		{"nil error", 0, nil, false},
		{"503", 0, &models.FetchError{URL: "u", StatusCode: 503}, true},
		{"429", 1, &models.FetchError{URL: "u", StatusCode: 429}, true},
		{"404", 0, &models.FetchError{URL: "u", StatusCode: 404}, false},
		{"last attempt", 2, &models.FetchError{URL: "u", StatusCode: 503}, false},
		{"deadline", 0, &models.FetchError{URL: "u", Err: context.DeadlineExceeded}, true},
		{"parse error", 0, &models.ParseError{URL: "u", Field: "name"}, false},
		{"cancelled", 0, &models.FetchError{URL: "u", Err: context.Canceled}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.attempt, tt.err))
		})
	}
}

func TestRetryPolicy_CalculateBackoff(t *testing.T) {
	p := NewRetryPolicy(5, 100*time.Millisecond, 300*time.Millisecond)

	first := p.CalculateBackoff(0)
	assert.GreaterOrEqual(t, first, 75*time.Millisecond)
	assert.LessOrEqual(t, first, 125*time.Millisecond)

	capped := p.CalculateBackoff(10)
	assert.LessOrEqual(t, capped, 375*time.Millisecond)
}

func TestRenderer_Disabled(t *testing.T) {
	cfg := testFetchConfig()
	cfg.EnableJavaScript = false
	r := NewRenderer(cfg, arbor.NewLogger())

	assert.False(t, r.Enabled())
	_, err := r.Render(context.Background(), "http://example.test/")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRenderingDisabled)
	assert.True(t, models.IsFetchError(err))
}
