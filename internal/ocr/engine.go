package ocr

import (
	"math/bits"
	"strings"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/screen"
)

// DefaultTolerance is the fraction of glyph pixels allowed to mismatch
// before a cell is rejected. Transfer artifacts flip isolated pixels; 35%
// absorbs them without confusing the digit set.
const DefaultTolerance = 0.35

// DefaultConfirmPasses is how many consecutive identical passes a changed
// field value needs before it enters the stable output.
const DefaultConfirmPasses = 2

// Field is one recognized semantic value. An empty Value means Unknown:
// nothing matched this pass, which is not an error.
type Field struct {
	Tag        Tag
	Value      string
	Confidence float64
}

// Known reports whether the field carries a usable value.
func (f Field) Known() bool {
	return f.Value != ""
}

// Engine matches the template registry against framebuffer regions and
// debounces the results into stable field values.
type Engine struct {
	specs     []FieldSpec
	tolerance float64
	stab      *stabilizer
}

// NewEngine builds an engine over a field registry. Zero tolerance or
// confirmPasses pick the defaults.
func NewEngine(specs []FieldSpec, tolerance float64, confirmPasses int) *Engine {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if confirmPasses <= 0 {
		confirmPasses = DefaultConfirmPasses
	}
	return &Engine{
		specs:     specs,
		tolerance: tolerance,
		stab:      newStabilizer(confirmPasses),
	}
}

// Pass runs one decode pass over the framebuffer and returns the stable
// value for every registered field. A changed raw value only flips the
// stable output after confirmation on consecutive passes.
func (e *Engine) Pass(fb *screen.Framebuffer) map[Tag]Field {
	out := make(map[Tag]Field, len(e.specs))
	for _, spec := range e.specs {
		raw := e.scanField(fb, spec)
		out[spec.Tag] = e.stab.observe(spec.Tag, raw)
	}
	return out
}

// Reset forgets all stabilizer history, e.g. across mode switches.
func (e *Engine) Reset() {
	e.stab.reset()
}

func (e *Engine) scanField(fb *screen.Framebuffer, spec FieldSpec) Field {
	var value string
	var conf float64
	switch spec.Mode {
	case ScanRTL:
		value, conf = e.scanRTL(fb, spec)
	case ScanAnchor:
		value, conf = e.scanAnchor(fb, spec)
	case ScanCentered:
		value, conf = e.scanCentered(fb, spec)
	default:
		value, conf = e.scanLTR(fb, spec)
	}
	if strings.Trim(value, "? ") == "" {
		return Field{Tag: spec.Tag}
	}
	return Field{Tag: spec.Tag, Value: value, Confidence: conf}
}

// readCell reads one glyph cell's column patterns at (x, y).
func readCell(fb *screen.Framebuffer, x, y int, font *Font) (cols []uint16, blank bool) {
	cols = make([]uint16, font.Width)
	blank = true
	for i := 0; i < font.Width; i++ {
		cols[i] = fb.ColumnPattern(x+i, y, font.Height)
		if cols[i] != 0 {
			blank = false
		}
	}
	return cols, blank
}

// mismatch counts differing pixels between a scanned cell and a template.
func mismatch(cols []uint16, glyph *Glyph) int {
	n := 0
	for i := range cols {
		n += bits.OnesCount16(cols[i] ^ glyph.Cols[i])
	}
	return n
}

// matchCell scores every template against a cell and keeps the best.
// Confidence is the fraction of agreeing pixels; the match is rejected when
// the mismatch fraction exceeds the engine tolerance.
func (e *Engine) matchCell(cols []uint16, font *Font) (ch rune, conf float64, ok bool) {
	total := font.Width * font.Height
	best := total + 1
	for i := range font.Glyphs {
		if n := mismatch(cols, &font.Glyphs[i]); n < best {
			best = n
			ch = font.Glyphs[i].Char
		}
	}
	if best > total {
		return '?', 0, false
	}
	conf = 1 - float64(best)/float64(total)
	if float64(best) > float64(total)*e.tolerance {
		return '?', conf, false
	}
	return ch, conf, true
}

type scanAccum struct {
	sb      strings.Builder
	confSum float64
	matched int
}

func (a *scanAccum) add(ch rune, conf float64, ok bool) {
	a.sb.WriteRune(ch)
	if ok {
		a.confSum += conf
		a.matched++
	}
}

func (a *scanAccum) result() (string, float64) {
	value := strings.TrimSpace(a.sb.String())
	if a.matched == 0 {
		return value, 0
	}
	return value, a.confSum / float64(a.matched)
}

func (e *Engine) scanLTR(fb *screen.Framebuffer, spec FieldSpec) (string, float64) {
	font := spec.Font
	var acc scanAccum
	for x := spec.Region.X; x <= spec.Region.X+spec.Region.W-font.Width; x += font.Step() {
		cols, blank := readCell(fb, x, spec.Region.Y, font)
		if blank {
			acc.sb.WriteRune(' ')
			continue
		}
		acc.add(e.matchCell(cols, font))
	}
	return acc.result()
}

func (e *Engine) scanRTL(fb *screen.Framebuffer, spec FieldSpec) (string, float64) {
	font := spec.Font
	var cells []rune
	var confSum float64
	matched := 0
	for x := spec.Region.X + spec.Region.W - font.Width; x >= spec.Region.X; x -= font.Step() {
		cols, blank := readCell(fb, x, spec.Region.Y, font)
		if blank {
			cells = append(cells, ' ')
			continue
		}
		ch, conf, ok := e.matchCell(cols, font)
		cells = append(cells, ch)
		if ok {
			confSum += conf
			matched++
		}
	}
	// Cells were collected right to left; restore reading order.
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	value := strings.TrimSpace(string(cells))
	if matched == 0 {
		return value, 0
	}
	return value, confSum / float64(matched)
}

// scanAnchor slides pixel-by-pixel to find the anchor glyph (the decimal
// point of the frequency readout), then walks glyph cells outward from it.
// Without a credible anchor it falls back to the centered scan, since the
// field may legitimately not contain one.
func (e *Engine) scanAnchor(fb *screen.Framebuffer, spec FieldSpec) (string, float64) {
	font := spec.Font
	anchor := font.Find(spec.Anchor)
	if anchor == nil {
		return e.scanCentered(fb, spec)
	}
	total := font.Width * font.Height
	bestX := -1
	bestMismatch := total + 1
	for x := spec.Region.X; x <= spec.Region.X+spec.Region.W-font.Width; x++ {
		cols, blank := readCell(fb, x, spec.Region.Y, font)
		if blank {
			continue
		}
		if n := mismatch(cols, anchor); n < bestMismatch {
			bestMismatch = n
			bestX = x
		}
	}
	if bestX < 0 || float64(bestMismatch) > float64(total)*e.tolerance {
		return e.scanCentered(fb, spec)
	}

	var left []rune
	confSum := 1 - float64(bestMismatch)/float64(total)
	matched := 1
	for x := bestX - font.Step(); x >= spec.Region.X; x -= font.Step() {
		cols, blank := readCell(fb, x, spec.Region.Y, font)
		if blank {
			break
		}
		ch, conf, ok := e.matchCell(cols, font)
		left = append(left, ch)
		if ok {
			confSum += conf
			matched++
		}
	}
	var right []rune
	for x := bestX + font.Step(); x <= spec.Region.X+spec.Region.W-font.Width; x += font.Step() {
		cols, blank := readCell(fb, x, spec.Region.Y, font)
		if blank {
			break
		}
		ch, conf, ok := e.matchCell(cols, font)
		right = append(right, ch)
		if ok {
			confSum += conf
			matched++
		}
	}

	var sb strings.Builder
	for i := len(left) - 1; i >= 0; i-- {
		sb.WriteRune(left[i])
	}
	sb.WriteRune(spec.Anchor)
	for _, ch := range right {
		sb.WriteRune(ch)
	}
	return sb.String(), confSum / float64(matched)
}

// scanCentered tries every grid offset and keeps the pass matching the most
// glyphs. The device centers some readouts, so the cell grid's origin is
// unknown within one step.
func (e *Engine) scanCentered(fb *screen.Framebuffer, spec FieldSpec) (string, float64) {
	font := spec.Font
	bestScore := -1
	var bestValue string
	var bestConf float64
	for offset := 0; offset < font.Step(); offset++ {
		var acc scanAccum
		for x := spec.Region.X + offset; x <= spec.Region.X+spec.Region.W-font.Width; x += font.Step() {
			cols, blank := readCell(fb, x, spec.Region.Y, font)
			if blank {
				acc.sb.WriteRune(' ')
				continue
			}
			acc.add(e.matchCell(cols, font))
		}
		value, conf := acc.result()
		if acc.matched > bestScore {
			bestScore = acc.matched
			bestValue = value
			bestConf = conf
		}
	}
	return bestValue, bestConf
}
