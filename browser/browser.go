// Package browser wraps the page automation engines the crawler drives.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrTimeout is returned by Page.WaitFor when the marker did not appear in time.
var ErrTimeout = errors.New("browser: wait timed out")

// Engine names.
const (
	EnginePlaywright = "playwright"
	EngineChromedp   = "chromedp"
	EngineStatic     = "static"
)

// Marker identifies an element to wait for, either by CSS selector or by visible text.
type Marker struct {
	Selector string
	Text     string
}

func (m Marker) String() string {
	if m.Selector != "" {
		return m.Selector
	}
	return "text=" + m.Text
}

// Options configures a browser session.
type Options struct {
	Engine            string
	Headless          bool
	NavigationTimeout time.Duration
	// Transport overrides the HTTP transport of the static engine.
	Transport http.RoundTripper
}

// Session is a running browser.
type Session interface {
	// NewPage opens a fresh browsing context identified by userAgent and returns its page.
	NewPage(ctx context.Context, userAgent string) (Page, error)
	Close() error
}

// Page is a single tab. Goto returns once the document has been parsed.
type Page interface {
	Goto(ctx context.Context, url string) error
	// WaitFor blocks until m is present or timeout elapses, in which case it returns an
	// error wrapping ErrTimeout.
	WaitFor(ctx context.Context, m Marker, timeout time.Duration) error
	Content(ctx context.Context) (string, error)
}

// StatusError reports an HTTP error status returned for a navigation.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("navigate %s: http status %d", e.URL, e.StatusCode)
}

// Launch starts a session for the configured engine.
func Launch(ctx context.Context, opts Options) (Session, error) {
	switch opts.Engine {
	case EnginePlaywright, "":
		s, err := launchPlaywright(opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case EngineChromedp:
		return launchChromedp(ctx, opts), nil
	case EngineStatic:
		return launchStatic(opts), nil
	default:
		return nil, fmt.Errorf("unsupported browser engine: %s", opts.Engine)
	}
}

func timeoutError(m Marker, timeout time.Duration) error {
	return fmt.Errorf("%w: %s after %s", ErrTimeout, m, timeout)
}
