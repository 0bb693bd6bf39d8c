// Package models defines data structures for the scraper.
package models

import "time"

// Story represents one listing entry recovered from an excerpt fragment.
type Story struct {
	Title        string    `csv:"title" json:"title"`
	URL          string    `csv:"url" json:"url"`
	Chapters     int       `csv:"chapters" json:"chapters"`
	Subscribers  int       `csv:"subscribers" json:"subscribers"`
	Views        int       `csv:"views" json:"views"`
	SubViewRatio float64   `csv:"sub_view_ratio" json:"sub_view_ratio"`
	SubViewPct   string    `csv:"sub_view_pct" json:"sub_view_pct"`
	ScrapedAt    time.Time `csv:"-" json:"-"`
}

// Columns is the fixed export column order.
var Columns = []string{"title", "url", "chapters", "subscribers", "views", "sub_view_ratio", "sub_view_pct"}

// PageBatch holds the stories extracted from a single listing page, in document order.
type PageBatch struct {
	Index   int
	URL     string
	Stories []*Story
}

// Empty reports whether the page produced no stories.
func (b PageBatch) Empty() bool {
	return len(b.Stories) == 0
}

// StopReason explains why pagination ended.
type StopReason string

const (
	StopExhausted StopReason = "page_budget_exhausted"
	StopEmptyPage StopReason = "empty_page"
	StopFailed    StopReason = "navigation_failed"
)

// CrawlResult holds the overall result of a crawl.
type CrawlResult struct {
	Stories    []*Story
	StartTime  time.Time
	EndTime    time.Time
	PageCount  int
	Challenges int
	StopReason StopReason
	LastURL    string
}
