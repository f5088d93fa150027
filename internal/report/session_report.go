package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"posture-monitor/internal/analytics"
	"posture-monitor/internal/models"
)

const (
	SummarySheet  = "Summary"
	TimelineSheet = "Timeline"
)

// TimelineHeader 明细表头
var TimelineHeader = []string{
	"Timestamp",
	"Status",
	"Neck Angle",
	"Torso Angle",
	"Distance Score",
	"Confidence",
}

// BuildSessionReport 生成会话报表：Summary（统计摘要）+ Timeline（全部姿态日志）
// 调用方负责 Close 返回的文件。
func BuildSessionReport(stats *analytics.Stats, entries []models.PostureLogEntry) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(TimelineSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSummary(f, stats, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeTimeline(f, entries, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	f.SetActiveSheet(0)
	return f, nil
}

// RenderSessionReport 生成报表并序列化为 xlsx 字节
func RenderSessionReport(stats *analytics.Stats, entries []models.PostureLogEntry) ([]byte, error) {
	f, err := BuildSessionReport(stats, entries)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, s *analytics.Stats, headerStyle int) error {
	rows := [][]any{
		{"Metric", "Value"},
		{"Session ID", s.SessionID},
		{"Session Status", s.SessionStatus},
		{"Duration (minutes)", s.DurationMinutes},
		{"Total Logs", s.TotalLogs},
		{"Posture Score", s.Score},
		{"Slouch Duration (seconds)", s.SlouchMetrics.TotalDurationSeconds},
		{"Longest Slouch Streak (seconds)", s.SlouchMetrics.LongestStreakSeconds},
		{"Trend", s.Trend.Direction},
		{"Trend Start Score", s.Trend.StartScore},
		{"Trend End Score", s.Trend.EndScore},
	}
	for _, status := range []models.PostureStatus{
		models.StatusGood,
		models.StatusSlouching,
		models.StatusTooClose,
		models.StatusNoPerson,
		models.StatusError,
	} {
		if pct, ok := s.PostureBreakdown[string(status)]; ok {
			rows = append(rows, []any{fmt.Sprintf("%s (%%)", status), pct})
		}
	}
	rows = append(rows, []any{"Recommendations", strings.Join(s.Recommendations, "\n")})

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "B1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 32); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(SummarySheet, "B", "B", 60); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

func writeTimeline(f *excelize.File, entries []models.PostureLogEntry, headerStyle int) error {
	header := make([]any, len(TimelineHeader))
	for i, h := range TimelineHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(TimelineSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write timeline header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(TimelineHeader))
	if err := f.SetCellStyle(TimelineSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, e := range entries {
		row := []any{
			e.Timestamp.UTC().Format(time.RFC3339),
			string(e.Status),
			optional(e.NeckAngle),
			optional(e.TorsoAngle),
			optional(e.DistanceScore),
			optional(e.Confidence),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(TimelineSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write timeline row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(TimelineSheet, "A", "A", 24); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

// optional 空值写空单元格
func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
