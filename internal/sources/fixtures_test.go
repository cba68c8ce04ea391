package sources

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"golang.org/x/text/encoding/japanese"

	"github.com/ternarybob/tacklebox/internal/common"
	"github.com/ternarybob/tacklebox/internal/fetch"
	"github.com/ternarybob/tacklebox/internal/interfaces"
)

// route serves a testdata file; {{BASE}} in the file is replaced with the
// server URL
type route struct {
	file     string
	shiftJIS bool
}

func fixtureServer(t *testing.T, routes map[string]route) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt, ok := routes[r.URL.RequestURI()]
		if !ok {
			rt, ok = routes[r.URL.Path]
		}
		if !ok {
			http.NotFound(w, r)
			return
		}

		data, err := os.ReadFile(filepath.Join("testdata", rt.file))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		body := strings.ReplaceAll(string(data), "{{BASE}}", server.URL)

		switch {
		case rt.shiftJIS:
			encoded, err := japanese.ShiftJIS.NewEncoder().String(body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=Shift_JIS")
			_, _ = w.Write([]byte(encoded))
			return
		case strings.HasSuffix(rt.file, ".json"):
			w.Header().Set("Content-Type", "application/json")
		case strings.HasSuffix(rt.file, ".xml"):
			w.Header().Set("Content-Type", "application/xml")
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func testDeps() Deps {
	cfg := common.NewDefaultConfig().Fetch
	cfg.MaxAttempts = 1
	cfg.EnableJavaScript = false
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond
	cfg.RequestTimeout = 5 * time.Second

	logger := arbor.NewLogger()
	return Deps{
		Fetcher:  fetch.NewClient(cfg, logger),
		Renderer: fetch.NewRenderer(cfg, logger),
		Logger:   logger,
	}
}

// adapterAt returns the id's adapter pointed at the test server
func adapterAt(t *testing.T, id string, server *httptest.Server) interfaces.Adapter {
	t.Helper()
	reg := NewRegistry(testDeps(), map[string]common.SourceConfig{id: {BaseURL: server.URL}})
	a, ok := reg.Lookup(id)
	require.True(t, ok, "adapter %s not registered", id)
	return a
}
