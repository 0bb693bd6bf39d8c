package pipeline

import (
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-excerpts/models"
	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Sheet1"

// XLSXWriter streams stories into a single-sheet workbook. Nothing reaches disk until
// Close saves the workbook.
type XLSXWriter struct {
	path   string
	file   *excelize.File
	stream *excelize.StreamWriter
	row    int
	mu     sync.Mutex
}

// NewXLSXWriter prepares a workbook and writes the header row.
func NewXLSXWriter(filename string) (*XLSXWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	stream, err := f.NewStreamWriter(xlsxSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create xlsx stream: %w", err)
	}
	if err := stream.SetColWidth(1, 2, 48); err != nil {
		f.Close()
		return nil, fmt.Errorf("set xlsx column width: %w", err)
	}

	header := make([]interface{}, len(models.Columns))
	for i, name := range models.Columns {
		header[i] = name
	}
	if err := stream.SetRow("A1", header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}

	return &XLSXWriter{
		path:   filename,
		file:   f,
		stream: stream,
		row:    1,
	}, nil
}

// Write appends one row per story with numeric cells for the counters.
func (xw *XLSXWriter) Write(stories []*models.Story) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	for _, s := range stories {
		cell, err := excelize.CoordinatesToCellName(1, xw.row+1)
		if err != nil {
			return fmt.Errorf("xlsx cell: %w", err)
		}
		row := []interface{}{s.Title, s.URL, s.Chapters, s.Subscribers, s.Views, s.SubViewRatio, s.SubViewPct}
		if err := xw.stream.SetRow(cell, row); err != nil {
			return fmt.Errorf("write xlsx row: %w", err)
		}
		xw.row++
	}
	return nil
}

// Close flushes the stream and saves the workbook.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if err := xw.stream.Flush(); err != nil {
		xw.file.Close()
		return fmt.Errorf("flush xlsx stream: %w", err)
	}
	if err := xw.file.SaveAs(xw.path); err != nil {
		xw.file.Close()
		return fmt.Errorf("save xlsx file: %w", err)
	}
	return xw.file.Close()
}

// Validate ensures the workbook was saved.
func (xw *XLSXWriter) Validate() error {
	return validateFile("xlsx", xw.path)
}

// Path returns the output location.
func (xw *XLSXWriter) Path() string { return xw.path }
