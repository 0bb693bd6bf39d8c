package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-excerpts/browser"
	"github.com/aluiziolira/go-scrape-excerpts/config"
	"github.com/aluiziolira/go-scrape-excerpts/models"
	"github.com/aluiziolira/go-scrape-excerpts/operator"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStart = "https://www.example.test/browse/tag/demo/L/"

// fakeResponse scripts what the fake page shows for one URL.
type fakeResponse struct {
	html    string
	gotoErr error
	// challenge makes the challenge marker visible.
	challenge bool
	// listingTimeouts is how many listing waits time out before the marker appears;
	// negative means it never appears.
	listingTimeouts int
}

type waitCall struct {
	marker  browser.Marker
	timeout time.Duration
}

type fakePage struct {
	responses map[string]fakeResponse
	current   string
	visited   []string
	waits     []waitCall
	listing   map[string]int
}

func newFakePage(responses map[string]fakeResponse) *fakePage {
	return &fakePage{responses: responses, listing: make(map[string]int)}
}

func (p *fakePage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.visited = append(p.visited, url)
	p.current = url
	resp, ok := p.responses[url]
	if !ok {
		return &browser.StatusError{URL: url, StatusCode: http.StatusNotFound}
	}
	return resp.gotoErr
}

func (p *fakePage) WaitFor(ctx context.Context, m browser.Marker, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.waits = append(p.waits, waitCall{marker: m, timeout: timeout})
	resp := p.responses[p.current]
	timedOut := fmt.Errorf("waiting for %s: %w", m, browser.ErrTimeout)

	if m.Selector == "" {
		if resp.challenge {
			return nil
		}
		return timedOut
	}

	attempt := p.listing[p.current]
	p.listing[p.current]++
	if resp.listingTimeouts < 0 || attempt < resp.listingTimeouts {
		return timedOut
	}
	return nil
}

func (p *fakePage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.responses[p.current].html, nil
}

// sleepRecorder replaces real sleeping so tests observe every delay.
type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func listingPage(startID, count int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < count; i++ {
		id := startID + i
		fmt.Fprintf(&b, `<section class="excerpt"><h1 class="excerpt__title"><a href="/story/view/%d">Story %d</a></h1>`+
			`<div class="excerpt__meta__views"><strong>%d</strong> chapters <strong>1.2k</strong> subscribers <strong>12,000</strong> views</div></section>`,
			id, id, i+1)
	}
	b.WriteString("</body></html>")
	return b.String()
}

const emptyPage = "<html><body><p>Nothing here</p></body></html>"

func testConfig(maxPages int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.StartURL = testStart
	cfg.BaseURL = "https://www.example.test"
	cfg.MaxPages = maxPages
	return cfg
}

func newTestCrawler(t *testing.T, cfg *config.Config, page browser.Page, gate operator.Gate) (*Crawler, *sleepRecorder) {
	t.Helper()
	c, err := NewCrawler(cfg, page, gate)
	require.NoError(t, err)
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	c.jitter = func(lo, _ time.Duration) time.Duration { return lo }
	return c, rec
}

func pageURLs(cfg *config.Config, n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = PageURL(cfg.StartURL, cfg.PageURLFormat, cfg.PageStep, i)
	}
	return urls
}

func TestPageURL(t *testing.T) {
	tests := []struct {
		name   string
		start  string
		format string
		step   int
		index  int
		want   string
	}{
		{name: "first page is start verbatim", start: testStart, step: 60, index: 0, want: testStart},
		{name: "offset appended", start: testStart, step: 60, index: 1, want: "https://www.example.test/browse/tag/demo/L/60"},
		{name: "third page", start: testStart, step: 60, index: 2, want: "https://www.example.test/browse/tag/demo/L/120"},
		{name: "search step", start: "https://www.example.test/browse/search/q", step: 20, index: 3, want: "https://www.example.test/browse/search/q/60"},
		{name: "query page number", start: "https://www.example.test/list", format: "{start}?page={page}", step: 60, index: 1, want: "https://www.example.test/list?page=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PageURL(tt.start, tt.format, tt.step, tt.index))
		})
	}
}

func TestCrawlerStopsAfterEmptyPage(t *testing.T) {
	cfg := testConfig(5)
	urls := pageURLs(cfg, 5)
	page := newFakePage(map[string]fakeResponse{
		urls[0]: {html: listingPage(1, 3)},
		urls[1]: {html: listingPage(4, 2)},
		urls[2]: {html: emptyPage, listingTimeouts: -1},
		urls[3]: {html: listingPage(6, 3)},
		urls[4]: {html: listingPage(9, 3)},
	})
	c, rec := newTestCrawler(t, cfg, page, operator.Channel(make(chan struct{})))

	result, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, urls[:3], page.visited)
	assert.Equal(t, 3, result.PageCount)
	assert.Equal(t, models.StopEmptyPage, result.StopReason)
	assert.Equal(t, urls[2], result.LastURL)
	require.Len(t, result.Stories, 5)
	assert.Equal(t, "Story 1", result.Stories[0].Title)
	assert.Equal(t, "https://www.example.test/story/view/5", result.Stories[4].URL)

	// one throttle delay between each pair of fetched pages, none after the empty one
	assert.Equal(t, []time.Duration{time.Second, time.Second}, rec.delays)

	assert.Equal(t, 5.0, testutil.ToFloat64(c.Metrics.StoriesExtractedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.PagesTotal.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.ContentTimeoutsTotal))
}

func TestCrawlerExhaustsPageBudget(t *testing.T) {
	cfg := testConfig(2)
	urls := pageURLs(cfg, 3)
	page := newFakePage(map[string]fakeResponse{
		urls[0]: {html: listingPage(1, 2)},
		urls[1]: {html: listingPage(3, 2)},
		urls[2]: {html: listingPage(5, 2)},
	})
	c, rec := newTestCrawler(t, cfg, page, operator.Channel(make(chan struct{})))

	result, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, urls[:2], page.visited)
	assert.Equal(t, models.StopExhausted, result.StopReason)
	assert.Len(t, result.Stories, 4)
	assert.Len(t, rec.delays, 1)
}

func TestCrawlerChallengeRetriesContentWait(t *testing.T) {
	cfg := testConfig(1)
	page := newFakePage(map[string]fakeResponse{
		testStart: {html: listingPage(1, 2), challenge: true, listingTimeouts: 1},
	})
	gate := make(operator.Channel, 1)
	gate <- struct{}{}
	c, rec := newTestCrawler(t, cfg, page, gate)

	result, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Challenges)
	assert.Len(t, result.Stories, 2)
	assert.Equal(t, []time.Duration{3 * time.Second}, rec.delays)
	assert.Equal(t, []waitCall{
		{marker: browser.Marker{Text: "Verify you are human"}, timeout: 2 * time.Second},
		{marker: browser.Marker{Selector: "section.excerpt"}, timeout: 10 * time.Second},
		{marker: browser.Marker{Selector: "section.excerpt"}, timeout: 7 * time.Second},
	}, page.waits)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.ChallengesTotal))
	assert.Empty(t, gate, "gate token should be consumed")
}

func TestCrawlerContentTimeoutWithoutChallengeIsNotRetried(t *testing.T) {
	cfg := testConfig(3)
	page := newFakePage(map[string]fakeResponse{
		testStart: {html: emptyPage, listingTimeouts: 1},
	})
	c, rec := newTestCrawler(t, cfg, page, operator.Channel(make(chan struct{})))

	result, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StopEmptyPage, result.StopReason)
	assert.Equal(t, 0, result.Challenges)
	assert.Len(t, page.waits, 2)
	assert.Empty(t, rec.delays)
}

func TestCrawlerTimedOutContentStillExtracted(t *testing.T) {
	cfg := testConfig(1)
	page := newFakePage(map[string]fakeResponse{
		testStart: {html: listingPage(1, 1), listingTimeouts: -1},
	})
	c, _ := newTestCrawler(t, cfg, page, operator.Channel(make(chan struct{})))

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Stories, 1)
}

func TestCrawlerNavigationFailureKeepsPartialResult(t *testing.T) {
	cfg := testConfig(4)
	urls := pageURLs(cfg, 2)
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	page := newFakePage(map[string]fakeResponse{
		urls[0]: {html: listingPage(1, 2)},
		urls[1]: {gotoErr: refused},
	})
	c, _ := newTestCrawler(t, cfg, page, operator.Channel(make(chan struct{})))

	result, err := c.Run(context.Background())
	require.Error(t, err)

	var connErr ErrConnection
	assert.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, refused)
	require.NotNil(t, result)
	assert.Equal(t, models.StopFailed, result.StopReason)
	assert.Len(t, result.Stories, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.ErrorsTotal.WithLabelValues("connection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.PagesTotal.WithLabelValues("failed")))
}

func TestCrawlerGateHonoursCancellation(t *testing.T) {
	cfg := testConfig(1)
	page := newFakePage(map[string]fakeResponse{
		testStart: {html: listingPage(1, 1), challenge: true},
	})
	c, _ := newTestCrawler(t, cfg, page, operator.Channel(make(chan struct{})))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.StopFailed, result.StopReason)
	assert.Equal(t, 1, result.Challenges)
}

func TestCrawlerStaticEngineFailsOnChallenge(t *testing.T) {
	cfg := testConfig(2)
	cfg.Engine = browser.EngineStatic
	page := newFakePage(map[string]fakeResponse{
		testStart: {html: listingPage(1, 1), challenge: true},
	})
	gate := make(operator.Channel, 1)
	gate <- struct{}{}
	c, _ := newTestCrawler(t, cfg, page, gate)

	result, err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrChallengeNeedsBrowser)
	assert.ErrorContains(t, err, "challenge requires a real browser")
	assert.Equal(t, models.StopFailed, result.StopReason)
	assert.Equal(t, 1, result.Challenges)
	assert.Empty(t, result.Stories)
	assert.Len(t, gate, 1, "operator must not be prompted")
	assert.Len(t, page.waits, 1, "no content wait after the challenge")
}

func TestPagesStopsWhenConsumerBreaks(t *testing.T) {
	cfg := testConfig(3)
	urls := pageURLs(cfg, 3)
	page := newFakePage(map[string]fakeResponse{
		urls[0]: {html: listingPage(1, 1)},
		urls[1]: {html: listingPage(2, 1)},
		urls[2]: {html: listingPage(3, 1)},
	})
	c, rec := newTestCrawler(t, cfg, page, operator.Channel(make(chan struct{})))

	for batch, err := range c.Pages(context.Background()) {
		require.NoError(t, err)
		assert.Equal(t, 0, batch.Index)
		break
	}

	assert.Equal(t, urls[:1], page.visited)
	assert.Empty(t, rec.delays)
}

func TestNewCrawlerRequiresCollaborators(t *testing.T) {
	cfg := testConfig(1)
	_, err := NewCrawler(cfg, nil, operator.Channel(nil))
	assert.Error(t, err)
	_, err = NewCrawler(cfg, newFakePage(nil), nil)
	assert.Error(t, err)
}

func TestUniformDelayBounds(t *testing.T) {
	lo, hi := time.Second, 3*time.Second
	for i := 0; i < 1000; i++ {
		d := uniformDelay(lo, hi)
		if d < lo || d > hi {
			t.Fatalf("uniformDelay(%v, %v) = %v, out of range", lo, hi, d)
		}
	}
	if got := uniformDelay(hi, lo); got != hi {
		t.Fatalf("uniformDelay with inverted bounds = %v, want %v", got, hi)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, expected: "timeout"},
		{name: "browser timeout", err: fmt.Errorf("goto: %w", browser.ErrTimeout), expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, expected: "connection"},
		{name: "forbidden", err: &browser.StatusError{StatusCode: http.StatusForbidden}, expected: "forbidden"},
		{name: "not found", err: &browser.StatusError{StatusCode: http.StatusNotFound}, expected: "not_found"},
		{name: "rate limited", err: &browser.StatusError{StatusCode: http.StatusTooManyRequests}, expected: "rate_limited"},
		{name: "server error", err: &browser.StatusError{StatusCode: http.StatusBadGateway}, expected: "other"},
		{name: "other", err: errors.New("some other error"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err)); got != tt.expected {
				t.Fatalf("classifyError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCrawler_StaticIntegration(t *testing.T) {
	cfg := testConfig(10)
	urls := pageURLs(cfg, 3)

	transport := httpmock.NewMockTransport()
	for i, body := range []string{listingPage(1, 3), listingPage(4, 3), emptyPage} {
		resp := httpmock.NewStringResponse(http.StatusOK, body)
		resp.Header.Set("Content-Type", "text/html")
		transport.RegisterResponder(http.MethodGet, urls[i], httpmock.ResponderFromResponse(resp))
	}

	ctx := context.Background()
	session, err := browser.Launch(ctx, browser.Options{Engine: browser.EngineStatic, Transport: transport})
	require.NoError(t, err)
	defer session.Close()
	page, err := session.NewPage(ctx, cfg.UserAgent)
	require.NoError(t, err)

	c, rec := newTestCrawler(t, cfg, page, operator.Channel(make(chan struct{})))
	result, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.PageCount)
	assert.Equal(t, models.StopEmptyPage, result.StopReason)
	require.Len(t, result.Stories, 6)
	for i, story := range result.Stories {
		assert.Equal(t, fmt.Sprintf("https://www.example.test/story/view/%d", i+1), story.URL)
		assert.Equal(t, 1200, story.Subscribers)
		assert.Equal(t, 12000, story.Views)
		assert.Equal(t, "10.00%", story.SubViewPct)
	}
	assert.Len(t, rec.delays, 2)
	assert.Equal(t, 3, transport.GetTotalCallCount())
}
