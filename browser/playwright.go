package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
}

func launchPlaywright(opts Options) (*playwrightSession, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright run: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("playwright launch: %w", err)
	}
	return &playwrightSession{pw: pw, browser: browser, opts: opts}, nil
}

func (s *playwrightSession) NewPage(_ context.Context, userAgent string) (Page, error) {
	bctx, err := s.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(userAgent),
	})
	if err != nil {
		return nil, fmt.Errorf("playwright new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("playwright new page: %w", err)
	}
	if s.opts.NavigationTimeout > 0 {
		page.SetDefaultNavigationTimeout(float64(s.opts.NavigationTimeout.Milliseconds()))
	}
	return &playwrightPage{page: page}, nil
}

func (s *playwrightSession) Close() error {
	var errs []error
	if err := s.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	if err := s.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) WaitFor(ctx context.Context, m Marker, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	selector := m.Selector
	if selector == "" {
		selector = "text=" + m.Text
	}
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return timeoutError(m, timeout)
	}
	if err != nil {
		return fmt.Errorf("wait for %s: %w", m, err)
	}
	return nil
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	html, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("page content: %w", err)
	}
	return html, nil
}
