package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/kelseyhightower/envconfig"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// DefaultPageURLFormat appends the item offset as a path segment.
const DefaultPageURLFormat = "{start}/{offset}"

// EnvPrefix prefixes every environment override, e.g. SCRAPER_MAX_PAGES.
const EnvPrefix = "SCRAPER"

// Config holds scraper configuration.
type Config struct {
	StartURL      string `yaml:"start_url" json:"start_url" envconfig:"START_URL"`
	BaseURL       string `yaml:"base_url" json:"base_url" envconfig:"BASE_URL"`
	PageStep      int    `yaml:"page_step" json:"page_step" envconfig:"PAGE_STEP"`
	PageURLFormat string `yaml:"page_url_format" json:"page_url_format" envconfig:"PAGE_URL_FORMAT"`
	MaxPages      int    `yaml:"max_pages" json:"max_pages" envconfig:"MAX_PAGES"`

	MinDelay Duration `yaml:"min_delay" json:"min_delay" envconfig:"MIN_DELAY"`
	MaxDelay Duration `yaml:"max_delay" json:"max_delay" envconfig:"MAX_DELAY"`

	Engine            string   `yaml:"engine" json:"engine" envconfig:"ENGINE"`
	Headless          bool     `yaml:"headless" json:"headless" envconfig:"HEADLESS"`
	UserAgent         string   `yaml:"user_agent" json:"user_agent" envconfig:"USER_AGENT"`
	NavigationTimeout Duration `yaml:"navigation_timeout" json:"navigation_timeout" envconfig:"NAVIGATION_TIMEOUT"`

	ChallengeText       string   `yaml:"challenge_text" json:"challenge_text" envconfig:"CHALLENGE_TEXT"`
	ChallengeTimeout    Duration `yaml:"challenge_timeout" json:"challenge_timeout" envconfig:"CHALLENGE_TIMEOUT"`
	ChallengeSettle     Duration `yaml:"challenge_settle" json:"challenge_settle" envconfig:"CHALLENGE_SETTLE"`
	ContentTimeout      Duration `yaml:"content_timeout" json:"content_timeout" envconfig:"CONTENT_TIMEOUT"`
	ContentRetryTimeout Duration `yaml:"content_retry_timeout" json:"content_retry_timeout" envconfig:"CONTENT_RETRY_TIMEOUT"`

	ListingSelector string `yaml:"listing_selector" json:"listing_selector" envconfig:"LISTING_SELECTOR"`
	TitleSelector   string `yaml:"title_selector" json:"title_selector" envconfig:"TITLE_SELECTOR"`
	MetaSelector    string `yaml:"meta_selector" json:"meta_selector" envconfig:"META_SELECTOR"`
	StrictAdjacency bool   `yaml:"strict_adjacency" json:"strict_adjacency" envconfig:"STRICT_ADJACENCY"`

	OutputFile    string `yaml:"output_file" json:"output_file" envconfig:"OUTPUT"`
	OutputFormat  string `yaml:"output_format" json:"output_format" envconfig:"FORMAT"` // comma-separated: xlsx, csv, json
	BatchSize     int    `yaml:"batch_size" json:"batch_size" envconfig:"BATCH_SIZE"`
	DedupeMaxSize int    `yaml:"dedupe_max_size" json:"dedupe_max_size" envconfig:"DEDUPE_MAX_SIZE"`

	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr" envconfig:"METRICS_ADDR"`
	Verbose     bool   `yaml:"verbose" json:"verbose" envconfig:"VERBOSE"`
}

// DefaultConfig returns defaults for the tag browsing listing.
func DefaultConfig() *Config {
	return &Config{
		StartURL:            "https://www.asianfanfics.com/browse/tag/nomin/L/",
		BaseURL:             "https://www.asianfanfics.com",
		PageStep:            60,
		PageURLFormat:       DefaultPageURLFormat,
		MaxPages:            400,
		MinDelay:            DurationFrom(1 * time.Second),
		MaxDelay:            DurationFrom(3 * time.Second),
		Engine:              "playwright",
		Headless:            false,
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		NavigationTimeout:   DurationFrom(30 * time.Second),
		ChallengeText:       "Verify you are human",
		ChallengeTimeout:    DurationFrom(2 * time.Second),
		ChallengeSettle:     DurationFrom(3 * time.Second),
		ContentTimeout:      DurationFrom(10 * time.Second),
		ContentRetryTimeout: DurationFrom(7 * time.Second),
		ListingSelector:     "section.excerpt",
		TitleSelector:       "h1.excerpt__title",
		MetaSelector:        "div.excerpt__meta__views",
		OutputFile:          "output/stories.xlsx",
		OutputFormat:        "xlsx",
		BatchSize:           64,
		DedupeMaxSize:       0,
	}
}

// LoadFile merges the YAML or JSON5 file at path over cfg. Keys absent from the file keep
// their current value; keys present with a zero value (0, "", 0s) overwrite it.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	// decode over a copy so absent keys carry the current values through the merge
	fileCfg := *cfg
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		err = json5.Unmarshal(data, &fileCfg)
	default:
		err = yaml.Unmarshal(data, &fileCfg)
	}
	if err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}

	if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride, mergo.WithOverwriteWithEmptyValue); err != nil {
		return fmt.Errorf("merge config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with any SCRAPER_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	return nil
}

// Formats returns the normalised list of output formats.
func (c *Config) Formats() []string {
	var formats []string
	for _, f := range strings.Split(c.OutputFormat, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			formats = append(formats, f)
		}
	}
	return formats
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := validateURL("start URL", c.StartURL); err != nil {
		return err
	}
	if err := validateURL("base URL", c.BaseURL); err != nil {
		return err
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.MaxPages > 1 && c.PageStep <= 0 {
		return fmt.Errorf("page step must be positive")
	}
	if c.PageURLFormat != "" && !strings.Contains(c.PageURLFormat, "{offset}") && !strings.Contains(c.PageURLFormat, "{page}") {
		return fmt.Errorf("page url format must contain {offset} or {page}")
	}
	if c.MinDelay.Duration < 0 || c.MaxDelay.Duration < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.MaxDelay.Duration < c.MinDelay.Duration {
		return fmt.Errorf("max delay (%s) cannot be below min delay (%s)", c.MaxDelay, c.MinDelay)
	}
	switch c.Engine {
	case "playwright", "chromedp", "static":
	default:
		return fmt.Errorf("engine must be playwright, chromedp, or static")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.ChallengeTimeout.Duration < 0 || c.ChallengeSettle.Duration < 0 {
		return fmt.Errorf("challenge timings cannot be negative")
	}
	if c.ContentTimeout.Duration <= 0 || c.ContentRetryTimeout.Duration <= 0 {
		return fmt.Errorf("content timeouts must be positive")
	}
	if c.ListingSelector == "" || c.TitleSelector == "" || c.MetaSelector == "" {
		return fmt.Errorf("listing, title and meta selectors cannot be empty")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	formats := c.Formats()
	if len(formats) == 0 {
		return fmt.Errorf("output format cannot be empty")
	}
	for _, f := range formats {
		if f != "xlsx" && f != "csv" && f != "json" {
			return fmt.Errorf("output format must be xlsx, csv, or json, got %q", f)
		}
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize < 0 {
		return fmt.Errorf("dedupe max size cannot be negative")
	}
	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
