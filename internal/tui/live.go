package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/ocr"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/pipeline"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/spectrum"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/store"
)

// DefaultWaterfallDepth is the number of history lines kept on screen.
const DefaultWaterfallDepth = 16

type liveTickMsg time.Time

func liveTick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg {
		return liveTickMsg(t)
	})
}

// LiveModel implements the live monitoring UI on top of the pipeline's
// snapshots. It never touches pipeline internals; it only reads the
// latest committed snapshot each tick.
type LiveModel struct {
	pipe  *pipeline.Pipeline
	store *store.Store

	width  int
	height int
	depth  int

	waterfall [][]int
	lastSeq   int64
	haveFrame bool

	poiInput textinput.Model
	editing  bool
	status   string
}

// NewLiveModel constructs the live view. store may be nil when running
// without persistence.
func NewLiveModel(pipe *pipeline.Pipeline, st *store.Store, depth int) *LiveModel {
	if depth <= 0 {
		depth = DefaultWaterfallDepth
	}
	input := textinput.New()
	input.Placeholder = "description"
	input.CharLimit = 120
	return &LiveModel{
		pipe:     pipe,
		store:    st,
		depth:    depth,
		poiInput: input,
		lastSeq:  -1,
	}
}

// Init implements tea.Model.
func (m *LiveModel) Init() tea.Cmd {
	return liveTick()
}

// Update implements tea.Model.
func (m *LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case liveTickMsg:
		m.pullFrame()
		return m, liveTick()
	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "p":
			if m.store != nil {
				m.editing = true
				m.poiInput.Reset()
				m.poiInput.Focus()
			}
			return m, nil
		}
		return m, nil
	default:
		return m, nil
	}
}

func (m *LiveModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = false
		m.poiInput.Blur()
		return m, nil
	case tea.KeyEnter:
		m.saveMarker(m.poiInput.Value())
		m.editing = false
		m.poiInput.Blur()
		return m, nil
	default:
		var cmd tea.Cmd
		m.poiInput, cmd = m.poiInput.Update(msg)
		return m, cmd
	}
}

// pullFrame reads the latest snapshot and appends any new frame to the
// waterfall history.
func (m *LiveModel) pullFrame() {
	snap := m.pipe.Snapshot()
	if snap.Frame == nil || snap.Frame.Seq == m.lastSeq {
		return
	}
	m.lastSeq = snap.Frame.Seq
	m.haveFrame = true
	m.waterfall = append(m.waterfall, snap.Frame.Amplitudes)
	if len(m.waterfall) > m.depth {
		m.waterfall = m.waterfall[len(m.waterfall)-m.depth:]
	}
}

// saveMarker stores a point of interest at the current center frequency.
// During a recording it is tied to the open session; otherwise it is a
// live marker.
func (m *LiveModel) saveMarker(description string) {
	snap := m.pipe.Snapshot()
	freq, ok := centerFrequency(snap.Fields)
	if !ok {
		m.status = "no frequency readout to bookmark"
		return
	}
	poi := model.POI{
		FrequencyMHz: freq,
		CreatedAt:    time.Now(),
		Description:  strings.TrimSpace(description),
	}
	if snap.Recording {
		id := snap.SessionID
		poi.SessionID = &id
		if snap.Frame != nil {
			poi.Offset = snap.Frame.Offset
		}
	}
	if _, err := m.store.CreatePOI(context.Background(), poi); err != nil {
		logErrf("failed to save point of interest: %v\n", err)
		m.status = "failed to save point of interest"
		return
	}
	m.status = fmt.Sprintf("bookmarked %.5f MHz", freq)
}

func centerFrequency(fields map[ocr.Tag]ocr.Field) (float64, bool) {
	f, ok := fields[ocr.TagCenterFreq]
	if !ok || !f.Known() {
		return 0, false
	}
	return spectrum.ParseMHz(f.Value)
}

// View implements tea.Model.
func (m *LiveModel) View() string {
	snap := m.pipe.Snapshot()
	var sb strings.Builder

	sb.WriteString(screenStyle.Render(renderScreen(snap.Screen)))
	sb.WriteByte('\n')
	sb.WriteString(renderFields(snap.Fields))
	sb.WriteByte('\n')

	if len(m.waterfall) > 0 {
		sb.WriteString(renderWaterfall(m.waterfall))
		sb.WriteByte('\n')
	}

	sb.WriteString(m.renderStatus(snap))
	if m.editing {
		sb.WriteByte('\n')
		sb.WriteString(labelStyle.Render("POI: ") + m.poiInput.View())
	}
	return sb.String()
}

func (m *LiveModel) renderStatus(snap *pipeline.Snapshot) string {
	segments := []string{}
	switch {
	case snap.Stale:
		segments = append(segments, warnStyle.Render("STALE"))
	case !snap.Synced:
		segments = append(segments, warnStyle.Render("DESYNC"))
	default:
		segments = append(segments, valueStyle.Render("SYNC"))
	}
	if snap.Recording {
		segments = append(segments, recordingStyle.Render(fmt.Sprintf("REC #%d", snap.SessionID)))
	}
	if snap.RecordErr != nil {
		segments = append(segments, warnStyle.Render("REC FAIL"))
	}
	segments = append(segments,
		fmt.Sprintf("pkts %d", snap.Packets),
		fmt.Sprintf("rx %dB", snap.BytesRead))
	if snap.BytesLost > 0 {
		segments = append(segments, warnStyle.Render(fmt.Sprintf("lost %dB", snap.BytesLost)))
	}
	if m.status != "" {
		segments = append(segments, m.status)
	}
	segments = append(segments, "q quit · p bookmark")
	return footerStyle.Render(strings.Join(segments, "  "))
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
