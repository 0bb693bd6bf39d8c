// Package parser turns excerpt listing markup into stories.
package parser

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-excerpts/models"
)

// Layout names the selectors that locate the parts of a listing page.
type Layout struct {
	Listing string
	Title   string
	Meta    string
	Bind    BindOptions
}

// DefaultLayout returns the selectors used by the excerpt listing pages.
func DefaultLayout() Layout {
	return Layout{
		Listing: "section.excerpt",
		Title:   "h1.excerpt__title",
		Meta:    "div.excerpt__meta__views",
	}
}

// Extract assembles a story for every listing fragment in markup, preserving document order.
// A page without fragments yields an empty slice.
func Extract(markup string, base *url.URL, layout Layout) ([]*models.Story, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	stories := make([]*models.Story, 0)
	doc.Find(layout.Listing).Each(func(_ int, fragment *goquery.Selection) {
		if story, ok := Assemble(fragment, base, layout); ok {
			stories = append(stories, story)
		}
	})
	return stories, nil
}

// Assemble builds a story from one listing fragment. ok is false when the fragment has no
// title or no resolvable link.
func Assemble(fragment *goquery.Selection, base *url.URL, layout Layout) (*models.Story, bool) {
	title, link := titleAndLink(fragment.Find(layout.Title).First(), base)
	if title == "" || link == "" {
		return nil, false
	}

	var counts Counts
	if meta := fragment.Find(layout.Meta).First(); meta.Length() > 0 {
		counts = BindAdjacent(meta, layout.Bind)
		if !counts.Complete() {
			if raw, err := meta.Html(); err == nil {
				counts = counts.Merge(BindFallback(raw, counts))
			}
		}
	}

	story := &models.Story{
		Title:       title,
		URL:         link,
		Chapters:    counts.OrZero(Chapters),
		Subscribers: counts.OrZero(Subscribers),
		Views:       counts.OrZero(Views),
		ScrapedAt:   time.Now(),
	}
	story.SubViewRatio = SafeRatio(story.Subscribers, story.Views)
	story.SubViewPct = FormatPercent(story.SubViewRatio)
	return story, true
}

func titleAndLink(heading *goquery.Selection, base *url.URL) (string, string) {
	if heading.Length() == 0 {
		return "", ""
	}
	anchor := heading.Find("a").First()
	if anchor.Length() == 0 {
		return "", ""
	}

	title := strings.TrimSpace(anchor.Text())
	href, _ := anchor.Attr("href")
	if href == "" {
		return title, ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return title, ""
	}
	if base == nil {
		return title, ref.String()
	}
	return title, base.ResolveReference(ref).String()
}

// SafeRatio divides subscribers by views, returning 0 when views is 0.
func SafeRatio(subscribers, views int) float64 {
	if views == 0 {
		return 0.0
	}
	return float64(subscribers) / float64(views)
}

// FormatPercent renders a ratio as a two-decimal percentage string.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100.0)
}

// ValidateStory ensures the extractor captured the required fields.
func ValidateStory(s *models.Story) error {
	if s == nil {
		return fmt.Errorf("story is nil")
	}
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("story missing title")
	}
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("story missing url for %s", s.Title)
	}
	if s.Chapters < 0 || s.Subscribers < 0 || s.Views < 0 {
		return fmt.Errorf("story has negative counters for %s", s.Title)
	}
	return nil
}
