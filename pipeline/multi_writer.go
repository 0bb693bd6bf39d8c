package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-excerpts/models"
)

// MultiWriter fans every batch out to several writers.
type MultiWriter struct {
	writers []OutputWriter
	mu      sync.Mutex
}

// NewMultiWriter opens one writer per format, all derived from filename.
func NewMultiWriter(filename string, formats ...string) (*MultiWriter, error) {
	if len(formats) == 0 {
		return nil, fmt.Errorf("no output formats given")
	}
	mw := &MultiWriter{}
	for _, format := range formats {
		w, err := NewWriter(format, filename)
		if err != nil {
			mw.Close()
			return nil, fmt.Errorf("create %s writer: %w", format, err)
		}
		mw.writers = append(mw.writers, w)
	}
	return mw, nil
}

// Write writes stories to every writer, stopping at the first failure.
func (mw *MultiWriter) Write(stories []*models.Story) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for _, w := range mw.writers {
		if err := w.Write(stories); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Validate validates every output file.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Paths lists the output files in format order.
func (mw *MultiWriter) Paths() []string {
	paths := make([]string, 0, len(mw.writers))
	for _, w := range mw.writers {
		if p, ok := w.(interface{ Path() string }); ok {
			paths = append(paths, p.Path())
		}
	}
	return paths
}
