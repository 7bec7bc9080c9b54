// Package tui provides the Bubble Tea live-view and replay interfaces.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/ocr"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/screen"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/spectrum"
)

var (
	screenStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CACACA"))
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	valueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	recordingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	cursorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#1C86E4"))
)

// shadeRamp maps rising amplitude to denser block characters.
const shadeRamp = " ░▒▓█"

// renderScreen draws the 1-bpp framebuffer with half-block characters,
// packing two pixel rows into each terminal row.
func renderScreen(raw []byte) string {
	var fb screen.Framebuffer
	fb.Load(raw)
	var sb strings.Builder
	for y := 0; y < model.ScreenHeight; y += 2 {
		if y > 0 {
			sb.WriteByte('\n')
		}
		for x := 0; x < model.ScreenWidth; x++ {
			top := fb.Pixel(x, y)
			bottom := fb.Pixel(x, y+1)
			switch {
			case top && bottom:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bottom:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
	}
	return sb.String()
}

// shadeFor picks the ramp character for an amplitude.
func shadeFor(amp, max int) rune {
	if max <= 0 {
		return ' '
	}
	if amp < 0 {
		amp = 0
	}
	if amp > max {
		amp = max
	}
	ramp := []rune(shadeRamp)
	return ramp[amp*(len(ramp)-1)/max]
}

// renderWaterfall draws amplitude history, newest line last.
func renderWaterfall(history [][]int) string {
	lines := make([]string, 0, len(history))
	for _, amps := range history {
		var sb strings.Builder
		for _, a := range amps {
			sb.WriteRune(shadeFor(a, spectrum.MaxAmplitude))
		}
		lines = append(lines, sb.String())
	}
	return strings.Join(lines, "\n")
}

// renderSeekBar draws the energy overview with a position cursor. Each
// cell covers an equal share of the bucket list; the cursor sits at the
// playback position.
func renderSeekBar(buckets []model.EnergyBucket, width, position, total int) string {
	if width <= 0 {
		return ""
	}
	maxEnergy := 0
	for _, bk := range buckets {
		if bk.Energy > maxEnergy {
			maxEnergy = bk.Energy
		}
	}
	cursor := -1
	if total > 1 {
		cursor = position * (width - 1) / (total - 1)
	}
	var sb strings.Builder
	for i := 0; i < width; i++ {
		if i == cursor {
			sb.WriteString(cursorStyle.Render("┃"))
			continue
		}
		energy := 0
		if len(buckets) > 0 {
			bk := buckets[i*len(buckets)/width]
			energy = bk.Energy
		}
		sb.WriteRune(shadeFor(energy, maxEnergy))
	}
	return sb.String()
}

// renderFields draws the decoded telemetry line. Unknown fields render
// as a placeholder instead of vanishing, so the layout stays stable.
func renderFields(fields map[ocr.Tag]ocr.Field) string {
	segment := func(label string, tag ocr.Tag) string {
		value := "—"
		if f, ok := fields[tag]; ok && f.Known() {
			value = f.Value
		}
		return labelStyle.Render(label+" ") + valueStyle.Render(value)
	}
	parts := []string{
		segment("Center", ocr.TagCenterFreq),
		segment("Start", ocr.TagStartFreq),
		segment("End", ocr.TagEndFreq),
		segment("Mod", ocr.TagModulation),
		segment("BW", ocr.TagBandwidth),
		segment("Step", ocr.TagStep),
		segment("RSSI", ocr.TagRSSI),
	}
	return strings.Join(parts, "  ")
}

// renderFrameFields draws the telemetry stored on a replayed frame.
func renderFrameFields(f *model.SpectrumFrame) string {
	if f == nil {
		return labelStyle.Render("no frame")
	}
	segment := func(label, value string) string {
		if strings.TrimSpace(value) == "" {
			value = "—"
		}
		return labelStyle.Render(label+" ") + valueStyle.Render(value)
	}
	parts := []string{
		segment("Center", f.CenterFreq),
		segment("Start", f.StartFreq),
		segment("End", f.EndFreq),
		segment("Mod", f.Modulation),
		segment("BW", f.Bandwidth),
		segment("RSSI", f.RSSI),
	}
	return strings.Join(parts, "  ")
}
