package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/aluiziolira/go-scrape-excerpts/config"
	"github.com/aluiziolira/go-scrape-excerpts/parser"
	"github.com/aluiziolira/go-scrape-excerpts/scraper"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <page.html>...",
	Short: "Runs the page extractor over saved listing pages and prints stories as JSON lines.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExtract,
}

func init() {
	defaults := config.DefaultConfig()
	f := extractCmd.Flags()
	f.StringVar(&flagValues.baseURL, "base-url", defaults.BaseURL, "Base URL for resolving story links")
	f.BoolVar(&flagValues.strict, "strict", defaults.StrictAdjacency, "Require labels to touch their numbers")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	layout := scraper.LayoutFromConfig(cfg)
	encoder := json.NewEncoder(cmd.OutOrStdout())

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		stories, err := parser.Extract(string(data), base, layout)
		if err != nil {
			return fmt.Errorf("extract %s: %w", path, err)
		}
		slog.Debug("extracted file", slog.String("path", path), slog.Int("stories", len(stories)))

		for _, story := range stories {
			if err := encoder.Encode(story); err != nil {
				return fmt.Errorf("encode story: %w", err)
			}
		}
	}
	return nil
}
