// Package operator provides the human confirmation gate used while a challenge page is
// being solved by hand.
package operator

import (
	"context"
	"fmt"
	"io"

	"github.com/tcnksm/go-input"
)

// Gate blocks until an operator confirms that the crawl may continue.
type Gate interface {
	Wait(ctx context.Context, prompt string) error
}

// Terminal asks for confirmation on a line-oriented terminal.
type Terminal struct {
	ui *input.UI
}

// NewTerminal builds a gate reading from r and prompting on w.
func NewTerminal(r io.Reader, w io.Writer) *Terminal {
	return &Terminal{ui: &input.UI{Reader: r, Writer: w}}
}

// Wait prints prompt and blocks until a line is entered. There is no timeout; only ctx
// cancellation releases the caller early.
func (t *Terminal) Wait(ctx context.Context, prompt string) error {
	answered := make(chan error, 1)
	go func() {
		_, err := t.ui.Ask(prompt, &input.Options{HideOrder: true})
		answered <- err
	}()

	select {
	case err := <-answered:
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Channel is a gate released by sends on the channel.
type Channel chan struct{}

// Wait blocks until a value is received or ctx is done.
func (c Channel) Wait(ctx context.Context, _ string) error {
	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
