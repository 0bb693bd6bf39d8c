package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

type chromedpSession struct {
	parent context.Context
	opts   Options

	mu      sync.Mutex
	cancels []context.CancelFunc
}

func launchChromedp(ctx context.Context, opts Options) *chromedpSession {
	return &chromedpSession{parent: context.WithoutCancel(ctx), opts: opts}
}

// NewPage starts a dedicated Chrome process; chromedp applies the user agent per allocator.
func (s *chromedpSession) NewPage(_ context.Context, userAgent string) (Page, error) {
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if ua := strings.TrimSpace(userAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(s.parent, execOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser; it must not carry a deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp start: %w", err)
	}

	s.mu.Lock()
	s.cancels = append(s.cancels, tabCancel, allocCancel)
	s.mu.Unlock()

	return &chromedpPage{ctx: tabCtx, navTimeout: s.opts.NavigationTimeout}, nil
}

func (s *chromedpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	return nil
}

type chromedpPage struct {
	ctx        context.Context
	navTimeout time.Duration
}

// run executes actions on the tab, bounded by timeout (if any) and by the caller's ctx.
func (p *chromedpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx := p.ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) Goto(ctx context.Context, url string) error {
	if err := p.run(ctx, p.navTimeout, navigateDOMReady(url)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

// navigateDOMReady navigates the tab and returns on DOMContentLoaded. chromedp.Navigate
// would also wait for the load event, i.e. every image and stylesheet.
func navigateDOMReady(url string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		ready := make(chan struct{}, 1)
		chromedp.ListenTarget(listenCtx, func(ev any) {
			if _, ok := ev.(*page.EventDomContentEventFired); ok {
				select {
				case ready <- struct{}{}:
				default:
				}
			}
		})

		var res page.NavigateReturns
		if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(url), &res); err != nil {
			return err
		}
		if res.ErrorText != "" {
			return fmt.Errorf("page load error %s", res.ErrorText)
		}
		// same-document navigations have no loader and fire no DOMContentLoaded
		if res.LoaderID == "" {
			return nil
		}

		select {
		case <-ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *chromedpPage) WaitFor(ctx context.Context, m Marker, timeout time.Duration) error {
	var action chromedp.Action
	if m.Selector != "" {
		action = chromedp.WaitVisible(m.Selector, chromedp.ByQuery)
	} else {
		action = chromedp.WaitVisible(fmt.Sprintf(`//*[contains(text(), %q)]`, m.Text), chromedp.BySearch)
	}

	err := p.run(ctx, timeout, action)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return timeoutError(m, timeout)
	default:
		return fmt.Errorf("wait for %s: %w", m, err)
	}
}

func (p *chromedpPage) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("page content: %w", err)
	}
	return html, nil
}
