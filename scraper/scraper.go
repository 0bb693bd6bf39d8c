// Package scraper drives a browser page through the paginated listing and collects stories.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-excerpts/browser"
	"github.com/aluiziolira/go-scrape-excerpts/config"
	"github.com/aluiziolira/go-scrape-excerpts/models"
	"github.com/aluiziolira/go-scrape-excerpts/operator"
	"github.com/aluiziolira/go-scrape-excerpts/parser"
)

const challengePrompt = "Challenge detected. Complete the verification in the browser window, then press Enter to continue..."

// Crawler walks listing pages one at a time and owns the crawl state.
type Crawler struct {
	cfg     *config.Config
	page    browser.Page
	gate    operator.Gate
	base    *url.URL
	layout  parser.Layout
	Metrics *Metrics

	challenge browser.Marker
	listing   browser.Marker

	challenges int

	sleep  func(context.Context, time.Duration) error
	jitter func(lo, hi time.Duration) time.Duration
}

// NewCrawler builds a crawler that drives page and defers challenges to gate.
func NewCrawler(cfg *config.Config, page browser.Page, gate operator.Gate) (*Crawler, error) {
	if page == nil {
		return nil, fmt.Errorf("browser page is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("operator gate is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	layout := LayoutFromConfig(cfg)
	return &Crawler{
		cfg:       cfg,
		page:      page,
		gate:      gate,
		base:      base,
		layout:    layout,
		Metrics:   NewMetrics(),
		challenge: browser.Marker{Text: cfg.ChallengeText},
		listing:   browser.Marker{Selector: layout.Listing},
		sleep:     sleepContext,
		jitter:    uniformDelay,
	}, nil
}

// LayoutFromConfig overlays the configured selectors on the default listing layout.
func LayoutFromConfig(cfg *config.Config) parser.Layout {
	layout := parser.DefaultLayout()
	if cfg.ListingSelector != "" {
		layout.Listing = cfg.ListingSelector
	}
	if cfg.TitleSelector != "" {
		layout.Title = cfg.TitleSelector
	}
	if cfg.MetaSelector != "" {
		layout.Meta = cfg.MetaSelector
	}
	layout.Bind.Strict = cfg.StrictAdjacency
	return layout
}

// PageURL returns the address of the page at index. Page 0 is start itself; later pages
// substitute {start} (without trailing slashes), {offset} (index*step) and {page} (index+1)
// into format.
func PageURL(start, format string, step, index int) string {
	if index == 0 {
		return start
	}
	if format == "" {
		format = config.DefaultPageURLFormat
	}
	r := strings.NewReplacer(
		"{start}", strings.TrimRight(start, "/"),
		"{offset}", strconv.Itoa(index*step),
		"{page}", strconv.Itoa(index+1),
	)
	return r.Replace(format)
}

// Run consumes every page batch and returns the accumulated result. On a navigation
// failure the partial result is returned together with the error.
func (c *Crawler) Run(ctx context.Context) (*models.CrawlResult, error) {
	result := &models.CrawlResult{
		StartTime:  time.Now(),
		StopReason: models.StopExhausted,
	}

	for batch, err := range c.Pages(ctx) {
		if err != nil {
			result.StopReason = models.StopFailed
			result.Challenges = c.challenges
			result.EndTime = time.Now()
			return result, err
		}
		result.PageCount++
		result.LastURL = batch.URL
		result.Stories = append(result.Stories, batch.Stories...)
		if batch.Empty() {
			result.StopReason = models.StopEmptyPage
			slog.Info("no stories extracted, ending pagination early",
				slog.Int("page", batch.Index+1),
				slog.String("url", batch.URL),
			)
		}
	}

	result.Challenges = c.challenges
	result.EndTime = time.Now()
	return result, nil
}

// Pages lazily fetches listing pages in order. The sequence ends after MaxPages pages,
// after the first empty batch, or after yielding an error.
func (c *Crawler) Pages(ctx context.Context) iter.Seq2[models.PageBatch, error] {
	return func(yield func(models.PageBatch, error) bool) {
		for i := 0; i < c.cfg.MaxPages; i++ {
			batch, err := c.fetchPage(ctx, i)
			if err != nil {
				yield(batch, err)
				return
			}
			if !yield(batch, nil) || batch.Empty() {
				return
			}
			if i == c.cfg.MaxPages-1 {
				return
			}

			delay := c.jitter(c.cfg.MinDelay.Duration, c.cfg.MaxDelay.Duration)
			slog.Debug("throttling before next page", slog.Duration("delay", delay))
			if err := c.sleep(ctx, delay); err != nil {
				yield(models.PageBatch{Index: i + 1}, err)
				return
			}
		}
	}
}

func (c *Crawler) fetchPage(ctx context.Context, index int) (models.PageBatch, error) {
	pageURL := PageURL(c.cfg.StartURL, c.cfg.PageURLFormat, c.cfg.PageStep, index)
	batch := models.PageBatch{Index: index, URL: pageURL}
	start := time.Now()

	slog.Info("fetching page", slog.Int("page", index+1), slog.String("url", pageURL))

	if err := c.page.Goto(ctx, pageURL); err != nil {
		if ctx.Err() != nil {
			return batch, ctx.Err()
		}
		classified := classifyError(err)
		category := errorTypeLabel(classified)
		c.Metrics.IncError(category)
		c.Metrics.IncPage("failed")
		slog.Error("navigation failed",
			slog.String("url", pageURL),
			slog.String("category", category),
			slog.Any("error", err),
		)
		return batch, fmt.Errorf("page %d: %w", index+1, classified)
	}

	challenged, err := c.passChallenge(ctx)
	if err != nil {
		return batch, fmt.Errorf("page %d: %w", index+1, err)
	}
	if err := c.awaitContent(ctx, challenged); err != nil {
		return batch, fmt.Errorf("page %d: %w", index+1, err)
	}

	html, err := c.page.Content(ctx)
	if err != nil {
		return batch, fmt.Errorf("page %d: %w", index+1, err)
	}
	stories, err := parser.Extract(html, c.base, c.layout)
	if err != nil {
		return batch, fmt.Errorf("page %d: %w", index+1, err)
	}
	batch.Stories = stories

	outcome := "ok"
	if batch.Empty() {
		outcome = "empty"
	}
	c.Metrics.IncPage(outcome)
	c.Metrics.AddStories(len(stories))
	c.Metrics.ObserveDuration(time.Since(start))

	slog.Info("page extracted", slog.Int("page", index+1), slog.Int("stories", len(stories)))
	return batch, nil
}

// passChallenge checks briefly for the challenge marker and, when present, blocks until
// the operator confirms it has been solved.
func (c *Crawler) passChallenge(ctx context.Context) (bool, error) {
	if c.challenge.Text == "" {
		return false, nil
	}
	err := c.page.WaitFor(ctx, c.challenge, c.cfg.ChallengeTimeout.Duration)
	if errors.Is(err, browser.ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("detect challenge: %w", err)
	}

	c.challenges++
	c.Metrics.IncChallenges()
	if c.cfg.Engine == browser.EngineStatic {
		// no window exists for the operator to solve it in
		return false, fmt.Errorf("%w (engine %q), rerun with --engine playwright or chromedp",
			ErrChallengeNeedsBrowser, c.cfg.Engine)
	}
	slog.Warn("challenge page detected, waiting for operator", slog.String("marker", c.challenge.String()))
	if err := c.gate.Wait(ctx, challengePrompt); err != nil {
		return false, fmt.Errorf("await operator: %w", err)
	}
	return true, nil
}

// awaitContent waits for the listing marker. A timeout is not an error: the page simply
// yields no stories. Right after a challenge the wait is retried once after a settle delay.
func (c *Crawler) awaitContent(ctx context.Context, challenged bool) error {
	err := c.page.WaitFor(ctx, c.listing, c.cfg.ContentTimeout.Duration)
	if err == nil {
		return nil
	}
	if !errors.Is(err, browser.ErrTimeout) {
		return fmt.Errorf("wait for listing: %w", err)
	}
	c.Metrics.IncContentTimeouts()
	if !challenged {
		slog.Debug("listing marker did not appear", slog.String("marker", c.listing.String()))
		return nil
	}

	if err := c.sleep(ctx, c.cfg.ChallengeSettle.Duration); err != nil {
		return err
	}
	err = c.page.WaitFor(ctx, c.listing, c.cfg.ContentRetryTimeout.Duration)
	if errors.Is(err, browser.ErrTimeout) {
		c.Metrics.IncContentTimeouts()
		slog.Debug("listing marker still missing after challenge", slog.String("marker", c.listing.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("wait for listing: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// uniformDelay draws a duration uniformly from [lo, hi].
func uniformDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}
