package dispatch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/model"
)

const alertSheet = "alerts"

var alertSheetHeader = []string{
	"Logged At", "Entry ID", "Rule Type", "Subject", "Priority", "Message", "Attempt",
}

// SpreadsheetChannel appends every delivered alert as a row in an XLSX
// log the crib supervisor reviews.
type SpreadsheetChannel struct {
	logger *zap.Logger
	path   string

	// mu serializes file access; excelize files are not safe for
	// concurrent mutation and the workbook is rewritten on every row.
	mu sync.Mutex
}

// NewSpreadsheetChannel creates the spreadsheet channel. An empty path
// leaves the channel unconfigured.
func NewSpreadsheetChannel(logger *zap.Logger, path string) *SpreadsheetChannel {
	return &SpreadsheetChannel{
		logger: logger.Named("spreadsheet"),
		path:   path,
	}
}

func (c *SpreadsheetChannel) Name() string { return "spreadsheet" }

// Send appends one row for the entry. At-least-once delivery means a
// retried entry may produce a duplicate row; the entry ID column lets
// reviewers collapse those.
func (c *SpreadsheetChannel) Send(ctx context.Context, entry *model.AlertQueueEntry) error {
	if c.path == "" {
		return ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, isNew, err := c.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(alertSheet)
	if err != nil {
		return fmt.Errorf("failed to read alert sheet: %w", err)
	}

	rowNum := len(rows) + 1
	values := []interface{}{
		time.Now().UTC().Format(time.RFC3339),
		entry.ID,
		string(entry.Type),
		fmt.Sprintf("%s %s", entry.SubjectKind, entry.SubjectID),
		string(entry.Priority),
		entry.Message,
		entry.RetryCount + 1,
	}
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := f.SetCellValue(alertSheet, cell, v); err != nil {
			return fmt.Errorf("failed to set cell: %w", err)
		}
	}

	if isNew {
		err = f.SaveAs(c.path)
	} else {
		err = f.Save()
	}
	if err != nil {
		return fmt.Errorf("failed to save alert log: %w", err)
	}

	c.logger.Info("Alert row appended",
		zap.String("entry_id", entry.ID),
		zap.String("path", c.path),
		zap.Int("row", rowNum))
	return nil
}

// open loads the workbook, creating it with a header row on first use.
func (c *SpreadsheetChannel) open() (*excelize.File, bool, error) {
	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		f := excelize.NewFile()
		f.SetSheetName("Sheet1", alertSheet)
		for i, h := range alertSheetHeader {
			cell, err := excelize.CoordinatesToCellName(i+1, 1)
			if err != nil {
				f.Close()
				return nil, false, fmt.Errorf("failed to compute header cell: %w", err)
			}
			if err := f.SetCellValue(alertSheet, cell, h); err != nil {
				f.Close()
				return nil, false, fmt.Errorf("failed to write header: %w", err)
			}
		}
		return f, true, nil
	}

	f, err := excelize.OpenFile(c.path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open alert log: %w", err)
	}
	return f, false, nil
}
