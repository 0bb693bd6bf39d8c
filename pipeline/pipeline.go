// Package pipeline validates, de-duplicates and exports collected stories.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-scrape-excerpts/models"
	"github.com/aluiziolira/go-scrape-excerpts/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(stories []*models.Story) error
	Close() error
	Validate() error
}

// Options tunes batching and de-duplication.
type Options struct {
	BatchSize int
	// DedupeMaxSize bounds the number of remembered URLs; 0 disables de-duplication.
	DedupeMaxSize int
}

// Pipeline coordinates validation, de-duplication, and output writing. Stories are
// handled in submission order on the caller's goroutine.
type Pipeline struct {
	writer    OutputWriter
	batchSize int
	batch     []*models.Story

	seen *lru.Cache[string, struct{}]

	metrics metrics

	mu     sync.Mutex // guards batch, closed and err
	closed bool
	err    error
}

// NewPipeline builds a pipeline writing to writer.
func NewPipeline(writer OutputWriter, opts Options) (*Pipeline, error) {
	if writer == nil {
		return nil, fmt.Errorf("pipeline: writer is required")
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}

	p := &Pipeline{
		writer:    writer,
		batchSize: batchSize,
		batch:     make([]*models.Story, 0, batchSize),
		metrics:   newMetrics(),
	}
	if opts.DedupeMaxSize > 0 {
		seen, err := lru.New[string, struct{}](opts.DedupeMaxSize)
		if err != nil {
			return nil, fmt.Errorf("pipeline: dedupe cache: %w", err)
		}
		p.seen = seen
	}
	return p, nil
}

// Process validates stories and writes them in batches.
func (p *Pipeline) Process(stories ...*models.Story) error {
	if len(stories) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	if p.closed {
		return ErrPipelineClosed
	}

	for _, story := range stories {
		if story == nil || !p.accept(story) {
			continue
		}
		p.batch = append(p.batch, story)
		if len(p.batch) >= p.batchSize {
			if err := p.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes the pending batch, closes the writer and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return p.err
	}
	p.closed = true

	flushErr := p.err
	if flushErr == nil {
		flushErr = p.flush()
	}
	if err := p.writer.Close(); err != nil {
		p.err = errors.Join(flushErr, fmt.Errorf("close writer: %w", err))
		return p.err
	}
	return flushErr
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// LogSummary emits the counters at info level. Dropped duplicates are repeated at warn
// level since they are missing from the export.
func (p *Pipeline) LogSummary() {
	snapshot := p.GetMetrics()
	processed := snapshot["processed_stories"].(int64)
	validation := snapshot["validation_errors"].(map[string]int)
	duplicates := validation["duplicate_url"]
	slog.Info("pipeline finished",
		slog.Int64("processed", processed),
		slog.Int("invalid", validation["invalid_record"]),
		slog.Int("duplicates", duplicates),
	)
	if duplicates > 0 {
		slog.Warn("duplicate story URLs dropped from export", slog.Int("dropped", duplicates))
	}
}

func (p *Pipeline) accept(story *models.Story) bool {
	if err := parser.ValidateStory(story); err != nil {
		p.metrics.addValidation("invalid_record")
		slog.Debug("dropping invalid story", slog.String("url", story.URL), slog.Any("error", err))
		return false
	}

	if p.seen != nil {
		if p.seen.Contains(story.URL) {
			p.metrics.addValidation("duplicate_url")
			return false
		}
		p.seen.Add(story.URL, struct{}{})
	}

	p.metrics.incrementProcessed()
	return true
}

func (p *Pipeline) flush() error {
	if len(p.batch) == 0 {
		return nil
	}
	if err := p.writer.Write(p.batch); err != nil {
		p.err = fmt.Errorf("write batch: %w", err)
		return p.err
	}
	p.batch = p.batch[:0]
	return nil
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_stories": m.processed,
		"validation_errors": copyValidation,
	}
}
