package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"

	"github.com/ternarybob/tacklebox/internal/common"
	"github.com/ternarybob/tacklebox/internal/models"
)

// ErrRenderingDisabled is wrapped in a FetchError when fetch.enable_javascript is off
var ErrRenderingDisabled = errors.New("javascript rendering disabled")

// Renderer loads pages in headless Chrome. Each call gets its own browser,
// torn down before Render returns; browser_instances bounds how many run at once.
type Renderer struct {
	enabled        bool
	userAgent      string
	acceptLanguage string
	headless       bool
	noSandbox      bool
	wait           time.Duration
	timeout        time.Duration
	slots          *semaphore.Weighted
	logger         arbor.ILogger
}

// NewRenderer creates a renderer from the [fetch] configuration
func NewRenderer(cfg common.FetchConfig, logger arbor.ILogger) *Renderer {
	instances := cfg.BrowserInstances
	if instances <= 0 {
		instances = 1
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Renderer{
		enabled:        cfg.EnableJavaScript,
		userAgent:      cfg.UserAgent,
		acceptLanguage: cfg.AcceptLanguage,
		headless:       cfg.Headless,
		noSandbox:      cfg.NoSandbox,
		wait:           cfg.JavaScriptWait,
		timeout:        timeout + cfg.JavaScriptWait,
		slots:          semaphore.NewWeighted(int64(instances)),
		logger:         logger,
	}
}

// Enabled reports whether rendering is allowed by configuration
func (r *Renderer) Enabled() bool {
	return r.enabled
}

func (r *Renderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", r.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", r.noSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(1366, 900),
	)
	if r.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.userAgent))
	}
	return opts
}

// Render navigates to rawURL, waits for scripts to settle and returns the DOM
func (r *Renderer) Render(ctx context.Context, rawURL string) (*models.Page, error) {
	if !r.enabled {
		return nil, &models.FetchError{URL: rawURL, Err: ErrRenderingDisabled}
	}

	if err := r.slots.Acquire(ctx, 1); err != nil {
		return nil, &models.FetchError{URL: rawURL, Err: err}
	}
	defer r.slots.Release(1)

	start := time.Now()

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer allocatorCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			r.logger.Trace().Msgf("chromedp: "+format, args...)
		}),
	)
	defer browserCancel()

	pageCtx, pageCancel := context.WithTimeout(browserCtx, r.timeout)
	defer pageCancel()

	// First document response carries the page status
	var status atomic.Int64
	chromedp.ListenTarget(pageCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Type == network.ResourceTypeDocument {
			status.CompareAndSwap(0, resp.Response.Status)
		}
	})

	headers := network.Headers{}
	if r.acceptLanguage != "" {
		headers["Accept-Language"] = r.acceptLanguage
	}

	var html, location string
	err := chromedp.Run(pageCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.wait),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Err: fmt.Errorf("render: %w", err)}
	}

	code := int(status.Load())
	if code >= 400 {
		return nil, &models.FetchError{URL: rawURL, StatusCode: code}
	}
	if code == 0 {
		code = 200
	}
	if location == "" {
		location = rawURL
	}

	r.logger.Debug().
		Str("url", rawURL).
		Int("status", code).
		Int("bytes", len(html)).
		Dur("elapsed", time.Since(start)).
		Msg("Rendered page")

	return &models.Page{
		URL:         location,
		StatusCode:  code,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(html),
		Rendered:    true,
	}, nil
}
