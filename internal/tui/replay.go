package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/replay"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/spectrum"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/store"
)

type replayTickMsg time.Time

func replayTick() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(t time.Time) tea.Msg {
		return replayTickMsg(t)
	})
}

// ReplayModel implements session playback. The session is finalized and
// immutable, so the model reads frames without synchronization.
type ReplayModel struct {
	engine  *replay.Engine
	store   *store.Store
	session model.Session
	pois    []model.POI
	corrupt bool

	width  int
	height int
	depth  int

	poiInput textinput.Model
	editing  bool
	status   string
}

// NewReplayModel constructs the replay view. corrupt marks a session
// loaded with a truncated frame sequence.
func NewReplayModel(engine *replay.Engine, st *store.Store, session model.Session, pois []model.POI, corrupt bool, depth int) *ReplayModel {
	if depth <= 0 {
		depth = DefaultWaterfallDepth
	}
	input := textinput.New()
	input.Placeholder = "description"
	input.CharLimit = 120
	return &ReplayModel{
		engine:   engine,
		store:    st,
		session:  session,
		pois:     pois,
		corrupt:  corrupt,
		depth:    depth,
		poiInput: input,
	}
}

// Init implements tea.Model.
func (m *ReplayModel) Init() tea.Cmd {
	return replayTick()
}

// Update implements tea.Model.
func (m *ReplayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case replayTickMsg:
		m.engine.Tick(time.Time(msg))
		return m, replayTick()
	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && m.width > 0 {
			m.engine.BeginSeek()
			m.engine.SeekRatio(float64(msg.X) / float64(m.width-1))
			m.engine.EndSeek()
		}
		return m, nil
	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.handleKey(msg)
	default:
		return m, nil
	}
}

func (m *ReplayModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case " ":
		m.engine.Toggle(time.Now())
	case "s":
		m.engine.CycleSpeed(time.Now())
	case "left":
		m.engine.StepBy(-replay.FineStep)
	case "right":
		m.engine.StepBy(replay.FineStep)
	case "pgdown":
		m.engine.StepBy(-replay.CoarseStep)
	case "pgup":
		m.engine.StepBy(replay.CoarseStep)
	case "home":
		m.engine.SeekTo(0)
	case "end":
		m.engine.SeekTo(m.engine.Len() - 1)
	case "<":
		m.adjustCalibration(-1)
	case ">":
		m.adjustCalibration(1)
	case "p":
		if m.store != nil {
			m.editing = true
			m.poiInput.Reset()
			m.poiInput.Focus()
		}
	}
	return m, nil
}

func (m *ReplayModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
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

// adjustCalibration shifts the pixel-to-frequency offset and persists it
// on the session. Stored frames are untouched, so the shift realigns the
// whole recorded history at render time.
func (m *ReplayModel) adjustCalibration(delta int) {
	m.session.Calibration.PixelOffset += delta
	if m.store != nil {
		if err := m.store.SetCalibration(context.Background(), m.session.ID, m.session.Calibration); err != nil {
			logErrf("failed to save calibration: %v\n", err)
		}
	}
	m.status = fmt.Sprintf("calibration %+dpx", m.session.Calibration.PixelOffset)
}

func (m *ReplayModel) saveMarker(description string) {
	frame := m.engine.Frame()
	if frame == nil {
		return
	}
	freq, ok := spectrum.ParseMHz(frame.CenterFreq)
	if !ok {
		m.status = "frame has no frequency readout"
		return
	}
	id := m.session.ID
	poi := model.POI{
		SessionID:    &id,
		FrequencyMHz: freq,
		Offset:       frame.Offset,
		CreatedAt:    time.Now(),
		Description:  strings.TrimSpace(description),
	}
	poiID, err := m.store.CreatePOI(context.Background(), poi)
	if err != nil {
		logErrf("failed to save point of interest: %v\n", err)
		m.status = "failed to save point of interest"
		return
	}
	poi.ID = poiID
	m.pois = append(m.pois, poi)
	m.status = fmt.Sprintf("bookmarked %.5f MHz", freq)
}

// View implements tea.Model.
func (m *ReplayModel) View() string {
	var sb strings.Builder

	sb.WriteString(labelStyle.Render("Session ") + valueStyle.Render(m.session.Identifier))
	if m.corrupt {
		sb.WriteString("  " + warnStyle.Render("truncated: frame sequence was damaged"))
	}
	sb.WriteByte('\n')

	sb.WriteString(renderWaterfall(m.history()))
	sb.WriteByte('\n')
	sb.WriteString(renderFrameFields(m.engine.Frame()))
	sb.WriteByte('\n')

	barWidth := m.width
	if barWidth <= 0 {
		barWidth = model.SpectrumCols
	}
	sb.WriteString(renderSeekBar(m.engine.Buckets(), barWidth, m.engine.Index(), m.engine.Len()))
	sb.WriteByte('\n')

	sb.WriteString(m.renderStatus())
	if m.editing {
		sb.WriteByte('\n')
		sb.WriteString(labelStyle.Render("POI: ") + m.poiInput.View())
	}
	return sb.String()
}

// history returns the waterfall window ending at the current frame.
func (m *ReplayModel) history() [][]int {
	frame := m.engine.Frame()
	if frame == nil {
		return nil
	}
	idx := m.engine.Index()
	first := idx - m.depth + 1
	if first < 0 {
		first = 0
	}
	out := make([][]int, 0, idx-first+1)
	for i := first; i <= idx; i++ {
		out = append(out, m.engine.FrameAt(i).Amplitudes)
	}
	return out
}

func (m *ReplayModel) renderStatus() string {
	segments := []string{}
	switch m.engine.Mode() {
	case replay.Playing:
		segments = append(segments, valueStyle.Render(fmt.Sprintf("PLAY ×%d", m.engine.Speed())))
	case replay.Seeking:
		segments = append(segments, warnStyle.Render("SEEK"))
	default:
		segments = append(segments, labelStyle.Render("PAUSE"))
	}
	segments = append(segments, fmt.Sprintf("frame %d/%d", m.engine.Index()+1, m.engine.Len()))
	if frame := m.engine.Frame(); frame != nil {
		segments = append(segments, frame.Offset.Truncate(time.Millisecond).String())
	}
	if len(m.pois) > 0 {
		segments = append(segments, fmt.Sprintf("%d POIs", len(m.pois)))
	}
	if m.status != "" {
		segments = append(segments, m.status)
	}
	segments = append(segments, "space play · s speed · ←/→ step · pgup/pgdn jump · p bookmark · q quit")
	return footerStyle.Render(strings.Join(segments, "  "))
}
