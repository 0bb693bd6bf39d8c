package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-excerpts/models"
)

// printSample prints the first n stories, one line each.
func printSample(w io.Writer, stories []*models.Story, n int) {
	if len(stories) < n {
		n = len(stories)
	}
	fmt.Fprintln(w, "\nSample:")
	for i, s := range stories[:n] {
		fmt.Fprintf(w, "%d: %s / ch:%d sub:%d view:%d ratio:%.4f (%s)\n",
			i+1, truncateRunes(s.Title, 50), s.Chapters, s.Subscribers, s.Views, s.SubViewRatio, s.SubViewPct)
	}
}

func printSummary(w io.Writer, result *models.CrawlResult, paths []string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Crawl complete")

	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(w, "  Stories:       %d\n", len(result.Stories))
	if processed, ok := metrics["processed_stories"].(int64); ok {
		fmt.Fprintf(w, "  Exported:      %d\n", processed)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Fprintf(w, "  Validation:    %v\n", valErrors)
	}
	fmt.Fprintf(w, "  Challenges:    %d\n", result.Challenges)
	fmt.Fprintf(w, "  Stop reason:   %s\n", result.StopReason)
	if result.LastURL != "" {
		fmt.Fprintf(w, "  Last page:     %s\n", result.LastURL)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	if len(paths) > 0 {
		fmt.Fprintf(w, "  Output:        %s\n", strings.Join(paths, ", "))
	} else {
		fmt.Fprintln(w, "  Output:        nothing collected, no file written")
	}
	fmt.Fprintln(w, separator)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
