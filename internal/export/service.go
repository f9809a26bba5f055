package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cardscan/internal/boxtext"
)

const (
	RegionsSheet = "Regions"
	FilesSheet   = "Files"
)

// Item is one recognized (or failed) image of a batch.
type Item struct {
	Source  string
	JobID   uuid.UUID
	Regions *boxtext.RegionList
	Err     string
}

// Service produces XLSX bytes for exports.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

var regionHeaders = []string{"Source", "Line", "Text", "X1", "Y1", "X2", "Y2", "X3", "Y3", "X4", "Y4"}
var fileHeaders = []string{"Source", "Job ID", "Lines", "Status", "Error"}

// RegionsXLSX writes one row per text region on the Regions sheet, in batch and line order,
// and one row per image on the Files sheet.
func (s *Service) RegionsXLSX(items []Item) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("export.xlsx.close_error", "error", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", RegionsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(FilesSheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(RegionsSheet)
	f.SetActiveSheet(activeIndex)

	writeRow(f, RegionsSheet, 1, toAny(regionHeaders))
	writeRow(f, FilesSheet, 1, toAny(fileHeaders))

	row, regionRows := 2, 0
	for i, it := range items {
		status, lines := "OK", 0
		if it.Err != "" {
			status = "FAILED"
		}
		if it.Regions != nil {
			lines = it.Regions.Len()
			for li, r := range it.Regions.All() {
				vals := []any{it.Source, li + 1, r.Text()}
				for _, c := range r.Box().Flat() {
					vals = append(vals, c)
				}
				writeRow(f, RegionsSheet, row, vals)
				row++
				regionRows++
			}
		}
		jobID := ""
		if it.JobID != uuid.Nil {
			jobID = it.JobID.String()
		}
		writeRow(f, FilesSheet, i+2, []any{it.Source, jobID, lines, status, truncate(it.Err, 240)})
	}

	_ = f.SetColWidth(RegionsSheet, "A", "A", 48) // source
	_ = f.SetColWidth(RegionsSheet, "B", "B", 6)  // line
	_ = f.SetColWidth(RegionsSheet, "C", "C", 40) // text
	_ = f.SetColWidth(RegionsSheet, "D", "K", 8)  // coordinates
	_ = f.SetColWidth(FilesSheet, "A", "A", 48)
	_ = f.SetColWidth(FilesSheet, "B", "B", 38)
	_ = f.SetColWidth(FilesSheet, "E", "E", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"files", len(items),
		"rows", regionRows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, vals []any) {
	for col, v := range vals {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
