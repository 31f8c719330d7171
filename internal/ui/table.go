package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// FileTableItem represents a file in the table
type FileTableItem struct {
	Index int
	Name  string
	Size  int64
	Type  string
}

func styledTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Render()
}

// FileTableView lists the files about to be sent.
func FileTableView(items []FileTableItem) string {
	if len(items) == 0 {
		return MutedStyle.Render("No files")
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.Itoa(item.Index),
			truncateString(item.Name, 50),
			FormatBytes(item.Size),
			truncateString(item.Type, 20),
		})
	}
	return styledTable([]string{"#", "Name", "Size", "Type"}, rows)
}

type TransferSummary struct {
	Status    string
	Files     int
	Failed    int
	TotalSize int64
	Duration  time.Duration
}

func (s TransferSummary) speed() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.TotalSize) / s.Duration.Seconds()
}

func TransferSummaryView(s TransferSummary) string {
	rows := [][]string{
		{"Status", s.Status},
		{"Files", strconv.Itoa(s.Files)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Total Size", FormatBytes(s.TotalSize)},
		{"Duration", FormatDuration(s.Duration)},
		{"Avg Speed", FormatSpeed(s.speed())},
	}
	return styledTable([]string{"Metric", "Value"}, rows)
}

// RoomInfoView shows the code to read out to the other peer and the link
// that opens the same room in a browser.
func RoomInfoView(code, link string) string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Code:  %s\n%s Link:  %s",
		IconSuccess,
		IconCopy, CodeStyle.Render(code),
		IconWeb, MutedStyle.Render(link),
	)
	return RoomBoxStyle.Render(content)
}
