// Package export writes change records to spreadsheets and JSON files.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

// Format selects the export encoding.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// Sheet names of the xlsx workbook.
const (
	ChangesSheet = "Changes"
	SummarySheet = "Summary"
)

var changeHeader = []any{
	"Change ID", "Cycle", "Entity Type", "Entity ID", "Change Type", "Field",
	"Score", "Level", "Rationale", "Detected At", "Alert Sent", "Previous Value", "New Value",
}

// levels in report order.
var levels = []models.SignificanceLevel{
	models.LevelCritical, models.LevelHigh, models.LevelMedium, models.LevelLow,
}

// ParseFormat accepts "xlsx" or "json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q (want xlsx or json)", s)
}

// FormatForPath infers the format from a file extension, defaulting to xlsx.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatXLSX
}

// Write encodes changes to w in the given format.
func Write(w io.Writer, format Format, account string, changes []models.ChangeRecord, generatedAt time.Time) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, account, changes, generatedAt)
	case FormatXLSX:
		return WriteXLSX(w, account, changes, generatedAt)
	}
	return fmt.Errorf("unknown export format %q", format)
}

type jsonExport struct {
	Account     string                `json:"account"`
	GeneratedAt time.Time             `json:"generated_at"`
	Counts      map[string]int        `json:"counts"`
	Changes     []models.ChangeRecord `json:"changes"`
}

// WriteJSON writes an indented JSON document with per-level counts.
func WriteJSON(w io.Writer, account string, changes []models.ChangeRecord, generatedAt time.Time) error {
	if changes == nil {
		changes = []models.ChangeRecord{}
	}
	counts := make(map[string]int, len(levels))
	for _, l := range levels {
		counts[string(l)] = 0
	}
	for i := range changes {
		counts[string(changes[i].SignificanceLevel)]++
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonExport{Account: account, GeneratedAt: generatedAt.UTC(), Counts: counts, Changes: changes}); err != nil {
		return fmt.Errorf("encoding changes: %w", err)
	}
	return nil
}

// WriteXLSX writes a workbook with a Changes sheet, one row per change, and a
// Summary sheet counting changes per significance level.
func WriteXLSX(w io.Writer, account string, changes []models.ChangeRecord, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", ChangesSheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	if err := writeChanges(f, changes, bold); err != nil {
		return err
	}
	if err := writeSummary(f, account, changes, generatedAt, bold); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeChanges(f *excelize.File, changes []models.ChangeRecord, headerStyle int) error {
	if err := f.SetSheetRow(ChangesSheet, "A1", &changeHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(changeHeader))
	if err != nil {
		return fmt.Errorf("resolving columns: %w", err)
	}
	if err := f.SetCellStyle(ChangesSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i := range changes {
		c := &changes[i]
		prev, err := fieldsJSON(c.PreviousValue)
		if err != nil {
			return fmt.Errorf("encoding change %s: %w", c.ChangeID, err)
		}
		next, err := fieldsJSON(c.NewValue)
		if err != nil {
			return fmt.Errorf("encoding change %s: %w", c.ChangeID, err)
		}
		row := []any{
			c.ChangeID, c.CycleID, string(c.EntityType), c.EntityID, string(c.ChangeType), c.FieldChanged,
			c.SignificanceScore, string(c.SignificanceLevel), c.Rationale,
			c.ChangeTimestamp.UTC().Format(time.RFC3339), c.AlertSent, prev, next,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("resolving row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(ChangesSheet, cell, &row); err != nil {
			return fmt.Errorf("writing change %s: %w", c.ChangeID, err)
		}
	}

	if err := f.SetColWidth(ChangesSheet, "A", "H", 16); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(ChangesSheet, "I", "I", 60); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetPanes(ChangesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freezing header: %w", err)
	}
	if len(changes) > 0 {
		ref := fmt.Sprintf("A1:%s%d", lastCol, len(changes)+1)
		if err := f.AutoFilter(ChangesSheet, ref, nil); err != nil {
			return fmt.Errorf("adding filter: %w", err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, account string, changes []models.ChangeRecord, generatedAt time.Time, headerStyle int) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("creating summary sheet: %w", err)
	}
	counts := make(map[models.SignificanceLevel]int, len(levels))
	for i := range changes {
		counts[changes[i].SignificanceLevel]++
	}

	rows := [][]any{
		{"Account", account},
		{"Generated At", generatedAt.UTC().Format(time.RFC3339)},
		{},
		{"Level", "Changes"},
	}
	for _, l := range levels {
		rows = append(rows, []any{string(l), counts[l]})
	}
	rows = append(rows, []any{"Total", len(changes)})

	for i := range rows {
		if len(rows[i]) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("resolving summary row: %w", err)
		}
		if err := f.SetSheetRow(SummarySheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A4", "B4", headerStyle); err != nil {
		return fmt.Errorf("styling summary: %w", err)
	}
	if err := f.SetColWidth(SummarySheet, "A", "B", 18); err != nil {
		return fmt.Errorf("sizing summary: %w", err)
	}
	return nil
}

func fieldsJSON(v models.Fields) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
