package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
)

// session table column widths; the identifier column absorbs what is
// left of the terminal width.
const (
	colID       = 5
	colStarted  = 17
	colDuration = 9
	colFrames   = 8
	colPOIs     = 5
	colEnergy   = 7
	minIdent    = 12
)

// FormatSessionTable renders session summaries as a plain table sized to
// the terminal width, newest first as listed.
func FormatSessionTable(sessions []model.SessionSummary, width int) string {
	fixed := colID + colStarted + colDuration + colFrames + colPOIs + colEnergy + 6
	identWidth := width - fixed
	if identWidth < minIdent {
		identWidth = minIdent
	}

	var sb strings.Builder
	writeRow(&sb, identWidth, "ID", "IDENTIFIER", "STARTED", "DURATION", "FRAMES", "POIS", "ENERGY")
	for _, s := range sessions {
		duration := "open"
		if !s.EndedAt.IsZero() {
			duration = s.Duration.Truncate(time.Second).String()
		}
		writeRow(&sb, identWidth,
			fmt.Sprintf("%d", s.ID),
			s.Identifier,
			s.StartedAt.Format("2006-01-02 15:04"),
			duration,
			fmt.Sprintf("%d", s.FrameCount),
			fmt.Sprintf("%d", s.POICount),
			fmt.Sprintf("%d", s.MaxEnergy),
		)
	}
	return sb.String()
}

func writeRow(sb *strings.Builder, identWidth int, id, ident, started, duration, frames, pois, energy string) {
	cells := []string{
		cell(id, colID),
		cell(ident, identWidth),
		cell(started, colStarted),
		cell(duration, colDuration),
		cell(frames, colFrames),
		cell(pois, colPOIs),
		cell(energy, colEnergy),
	}
	sb.WriteString(strings.Join(cells, " "))
	sb.WriteByte('\n')
}

// cell truncates and pads a value to a fixed display width.
func cell(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}
