// Package report exports a learner's progress as an XLSX workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/quizbot/internal/learner"
	"github.com/p-n-ai/quizbot/internal/quiz"
)

const (
	SheetAttempts = "Attempts"
	SheetWeights  = "Weights"
)

// WriteXLSX writes a workbook with an Attempts sheet (oldest first) and a
// Weights sheet holding the learner's level, streaks and topic weights.
func WriteXLSX(w io.Writer, s quiz.Summary, attempts []learner.Attempt) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetAttempts); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeAttempts(f, header, attempts); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetWeights); err != nil {
		return fmt.Errorf("create %s sheet: %w", SheetWeights, err)
	}
	if err := writeWeights(f, header, s); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeAttempts(f *excelize.File, header int, attempts []learner.Attempt) error {
	rows := [][]any{{"Time", "Topic", "Question", "Correct"}}
	for _, a := range attempts {
		rows = append(rows, []any{a.CreatedAt.UTC().Format(time.RFC3339), a.Topic, a.QuestionID, a.Correct})
	}
	if err := setRows(f, SheetAttempts, rows); err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetAttempts, 1, 1, header); err != nil {
		return fmt.Errorf("style %s header: %w", SheetAttempts, err)
	}
	return f.SetColWidth(SheetAttempts, "A", "A", 22)
}

func writeWeights(f *excelize.File, header int, s quiz.Summary) error {
	rows := [][]any{
		{"Learner", s.LearnerID},
		{"Name", s.Name},
		{"Difficulty", s.Difficulty.String()},
		{"Correct streak", s.CorrectStreak},
		{"Wrong streak", s.WrongStreak},
		{"Active topic", s.ActiveTopic},
		{},
		{"Topic", "Weight", "Updated"},
	}
	tableHeader := len(rows)
	for _, w := range s.WeightDetail {
		rows = append(rows, []any{w.Topic, w.Value, w.UpdatedAt.UTC().Format(time.RFC3339)})
	}
	if err := setRows(f, SheetWeights, rows); err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetWeights, tableHeader, tableHeader, header); err != nil {
		return fmt.Errorf("style %s header: %w", SheetWeights, err)
	}
	return f.SetColWidth(SheetWeights, "A", "C", 18)
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
