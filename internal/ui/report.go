package ui

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Verification is the outcome for one received file.
type Verification struct {
	Name string
	Size int64
	Hash string
	Path string
	Err  error
}

func (v Verification) status() string {
	if v.Err != nil {
		return text.FgRed.Sprint("FAILED")
	}
	return text.FgGreen.Sprint("VERIFIED")
}

// VerificationReport renders one row per received file with its sha256
// and where it was saved.
func VerificationReport(results []Verification) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Verification")
	t.AppendHeader(table.Row{"#", "Name", "Size", "SHA-256", "Status", "Saved As"})

	var failed int
	for i, v := range results {
		detail := v.Path
		if v.Err != nil {
			failed++
			detail = v.Err.Error()
		}
		t.AppendRow(table.Row{i + 1, truncateString(v.Name, 40), FormatBytes(v.Size), shortHash(v.Hash), v.status(), detail})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Failed", failed})
	return t.Render()
}

func shortHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:16] + "…"
}
