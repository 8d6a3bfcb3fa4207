package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// SigRow is one line of the signature table.
type SigRow struct {
	Name      string
	Type      string
	Signature string
	// Source is "expanded", "disk" or "error".
	Source string
}

var sigHeader = SigRow{Name: "NAME", Type: "TYPE", Signature: "SIGNATURE", Source: "SOURCE"}

// RenderSigTable lays rows out in aligned columns no wider than width.
// Type and signature columns are truncated first. styled enables colors.
func RenderSigTable(rows []SigRow, width int, styled bool) string {
	if len(rows) == 0 {
		return ""
	}
	all := append([]SigRow{sigHeader}, rows...)
	nameW, typeW, sigW, srcW := 0, 0, 0, 0
	for _, r := range all {
		nameW = max(nameW, runewidth.StringWidth(r.Name))
		typeW = max(typeW, runewidth.StringWidth(r.Type))
		sigW = max(sigW, runewidth.StringWidth(r.Signature))
		srcW = max(srcW, runewidth.StringWidth(r.Source))
	}
	const gaps = 6
	if width > 0 {
		// share what is left after name and source between the other two
		room := width - nameW - srcW - gaps
		if room < 20 {
			room = 20
		}
		if typeW+sigW > room {
			typeW = min(typeW, max(room/2, room-sigW))
			sigW = room - typeW
		}
	}

	header := lipgloss.NewStyle().Bold(true)
	var b strings.Builder
	for i, r := range all {
		line := pad(r.Name, nameW) + "  " + pad(truncate(r.Type, typeW), typeW) + "  " +
			pad(truncate(r.Signature, sigW), sigW) + "  "
		src := pad(r.Source, srcW)
		switch {
		case !styled:
			line += src
		case i == 0:
			line = header.Render(line + src)
		default:
			line += styleStatus(sourceStatus(r.Source)).Render(src)
		}
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteByte('\n')
	}
	return b.String()
}

func sourceStatus(src string) string {
	switch src {
	case "error":
		return "error"
	case "disk":
		return "expanded"
	}
	return "done"
}

func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}
