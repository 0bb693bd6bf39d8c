package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-excerpts/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_step: 20\nmax_pages: 50\nengine: static\n"), 0o644))

	previous := configPath
	configPath = path
	t.Cleanup(func() { configPath = previous })

	t.Setenv("SCRAPER_MAX_PAGES", "12")
	t.Setenv("SCRAPER_ENGINE", "chromedp")
	require.NoError(t, crawlCmd.ParseFlags([]string{"--engine", "playwright", "--max-delay", "5s"}))

	c, err := loadConfig(crawlCmd)
	require.NoError(t, err)

	assert.Equal(t, 20, c.PageStep, "file overrides default")
	assert.Equal(t, 12, c.MaxPages, "env overrides file")
	assert.Equal(t, "playwright", c.Engine, "flag overrides env")
	assert.Equal(t, 5*time.Second, c.MaxDelay.Duration)
	assert.Equal(t, time.Second, c.MinDelay.Duration, "unchanged flag keeps lower layers")
}

func TestPrintSample(t *testing.T) {
	stories := make([]*models.Story, 7)
	for i := range stories {
		stories[i] = &models.Story{
			Title:        strings.Repeat("名", 60),
			Chapters:     i,
			Subscribers:  10,
			Views:        40,
			SubViewRatio: 0.25,
			SubViewPct:   "25.00%",
		}
	}

	var buf bytes.Buffer
	printSample(&buf, stories, sampleSize)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "Sample:", lines[0])
	assert.Equal(t, "1: "+strings.Repeat("名", 50)+" / ch:0 sub:10 view:40 ratio:0.2500 (25.00%)", lines[1])
}

func TestPrintSummaryWithoutStories(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	result := &models.CrawlResult{
		StartTime:  start,
		EndTime:    start.Add(2 * time.Second),
		PageCount:  1,
		StopReason: models.StopEmptyPage,
	}

	var buf bytes.Buffer
	printSummary(&buf, result, nil, nil)

	out := buf.String()
	assert.Contains(t, out, "Stop reason:   empty_page")
	assert.Contains(t, out, "no file written")
	assert.Contains(t, out, "Duration:      2s")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 50))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
}
