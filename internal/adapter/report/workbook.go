// Package report exports practice statistics as an xlsx workbook.
package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/eslsoft/factdrill/internal/entity"
)

const (
	WeakFactsSheet = "Weak facts"
	DueSheet       = "Due today"
)

var (
	weakHeader = []any{"Fact", "Operation", "Table", "Times seen", "Times incorrect", "Accuracy (%)", "Avg latency (s)"}
	dueHeader  = []any{"Fact", "Operation", "Table", "Interval (days)", "Repetitions", "Next review", "Last reviewed"}
)

// Report is the data rendered into one workbook.
type Report struct {
	UserID      int64
	GeneratedAt time.Time
	WeakFacts   []entity.WeakFactSummary
	Due         []entity.MasteryRecord
}

// Write renders r as xlsx into w.
func Write(w io.Writer, r Report) error {
	f, err := build(r)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteFile renders r as xlsx at path.
func WriteFile(path string, r Report) error {
	f, err := build(r)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func build(r Report) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", WeakFactsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(DueSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	weakRows := make([][]any, 0, len(r.WeakFacts))
	for _, s := range r.WeakFacts {
		weakRows = append(weakRows, []any{
			s.Fact.String(),
			string(s.Fact.Operation),
			s.Fact.Table(),
			s.TimesSeen,
			s.TimesIncorrect,
			math.Round(s.AccuracyRate*1000) / 10,
			math.Round(s.AvgLatency.Seconds()*100) / 100,
		})
	}
	dueRows := make([][]any, 0, len(r.Due))
	for _, m := range r.Due {
		dueRows = append(dueRows, []any{
			m.Fact.String(),
			string(m.Fact.Operation),
			m.Fact.Table(),
			m.IntervalDays,
			m.Repetitions,
			m.NextReviewOn.Format(entity.DateLayout),
			m.LastReviewedAt.Format(time.RFC3339),
		})
	}

	if err := writeSheet(f, WeakFactsSheet, weakHeader, weakRows, bold); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSheet(f, DueSheet, dueHeader, dueRows, bold); err != nil {
		f.Close()
		return nil, err
	}
	if !r.GeneratedAt.IsZero() {
		if err := f.SetDocProps(&excelize.DocProperties{
			Title:   fmt.Sprintf("Practice report for user %d", r.UserID),
			Created: r.GeneratedAt.UTC().Format(time.RFC3339),
			Creator: "factdrill",
		}); err != nil {
			f.Close()
			return nil, fmt.Errorf("set doc props: %w", err)
		}
	}
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, header []any, rows [][]any, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return f.SetColWidth(sheet, "A", "A", 14)
}
