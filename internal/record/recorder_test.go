package record

import (
	"testing"
	"time"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
)

// fakeSink collects sessions in memory.
type fakeSink struct {
	nextID    int64
	begun     int
	finished  int
	frames    map[int64][]*model.SpectrumFrame
	buckets   map[int64][]model.EnergyBucket
	endedAt   map[int64]time.Time
	startedAt map[int64]time.Time
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		frames:    make(map[int64][]*model.SpectrumFrame),
		buckets:   make(map[int64][]model.EnergyBucket),
		endedAt:   make(map[int64]time.Time),
		startedAt: make(map[int64]time.Time),
	}
}

func (s *fakeSink) BeginSession(start time.Time) (int64, error) {
	s.nextID++
	s.begun++
	s.startedAt[s.nextID] = start
	return s.nextID, nil
}

func (s *fakeSink) AppendFrame(id int64, f *model.SpectrumFrame) error {
	s.frames[id] = append(s.frames[id], f)
	return nil
}

func (s *fakeSink) FinishSession(id int64, end time.Time, buckets []model.EnergyBucket) error {
	s.finished++
	s.endedAt[id] = end
	s.buckets[id] = buckets
	return nil
}

func activeFrame(seq int64) *model.SpectrumFrame {
	amps := make([]int, model.SpectrumCols)
	for i := range amps {
		amps[i] = int(seq) % 10
	}
	return &model.SpectrumFrame{Seq: seq, Amplitudes: amps}
}

func TestStartDebounceHoldsBackShortBursts(t *testing.T) {
	sink := newFakeSink()
	r := NewRecorder(sink, Options{})
	now := time.Now()

	r.Observe(activeFrame(0), now)
	r.Observe(activeFrame(1), now.Add(100*time.Millisecond))
	r.Observe(nil, now.Add(200*time.Millisecond))

	if sink.begun != 0 {
		t.Fatalf("expected no session from a 2-frame burst, got %d", sink.begun)
	}
	if r.State() != StateIdle {
		t.Fatalf("expected idle state, got %d", r.State())
	}
}

func TestStartDebounceBackFillsPendingFrames(t *testing.T) {
	sink := newFakeSink()
	r := NewRecorder(sink, Options{})
	now := time.Now()

	for i := 0; i < DefaultStartDebounce; i++ {
		if err := r.Observe(activeFrame(int64(i)), now.Add(time.Duration(i)*100*time.Millisecond)); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}

	if r.State() != StateRecording {
		t.Fatalf("expected recording state, got %d", r.State())
	}
	got := sink.frames[r.SessionID()]
	if len(got) != DefaultStartDebounce {
		t.Fatalf("expected %d back-filled frames, got %d", DefaultStartDebounce, len(got))
	}
	if got[0].Seq != 0 {
		t.Fatalf("expected recording to start at the first active frame, got seq %d", got[0].Seq)
	}
}

func timedFrame(seq int64, offset time.Duration) *model.SpectrumFrame {
	f := activeFrame(seq)
	f.Offset = offset
	return f
}

func TestSessionStartsAtFirstPendingFrame(t *testing.T) {
	sink := newFakeSink()
	r := NewRecorder(sink, Options{})
	now := time.Now()

	for i := 0; i < DefaultStartDebounce; i++ {
		if err := r.Observe(activeFrame(int64(i)), now.Add(time.Duration(i)*100*time.Millisecond)); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}

	if got := sink.startedAt[r.SessionID()]; !got.Equal(now) {
		t.Fatalf("expected session to start at the first active frame %v, got %v", now, got)
	}
}

func TestSecondSessionRebasesSeqAndOffset(t *testing.T) {
	sink := newFakeSink()
	r := NewRecorder(sink, Options{})
	now := time.Now()
	tick := func(i int) time.Time { return now.Add(time.Duration(i) * 100 * time.Millisecond) }

	step := 0
	for i := 0; i < 4; i++ {
		r.Observe(timedFrame(int64(i), time.Duration(i)*100*time.Millisecond), tick(step))
		step++
	}
	for i := 0; i < DefaultStopDebounce; i++ {
		r.Observe(nil, tick(step))
		step++
	}

	// The decode pipeline keeps counting across sessions; the recorder
	// rebases so each session starts at seq 0 with a zero offset.
	base := step
	for i := 0; i < DefaultStartDebounce; i++ {
		r.Observe(timedFrame(int64(base+i), time.Duration(base+i)*100*time.Millisecond), tick(base+i))
	}

	second := sink.frames[r.SessionID()]
	if len(second) != DefaultStartDebounce {
		t.Fatalf("expected %d frames in second session, got %d", DefaultStartDebounce, len(second))
	}
	for i, f := range second {
		if f.Seq != int64(i) {
			t.Fatalf("frame %d: expected rebased seq %d, got %d", i, i, f.Seq)
		}
		want := time.Duration(i) * 100 * time.Millisecond
		if f.Offset != want {
			t.Fatalf("frame %d: expected session-relative offset %v, got %v", i, want, f.Offset)
		}
	}
}

func TestLoneDropoutDoesNotSplitSession(t *testing.T) {
	sink := newFakeSink()
	r := NewRecorder(sink, Options{})
	now := time.Now()
	tick := func(i int) time.Time { return now.Add(time.Duration(i) * 100 * time.Millisecond) }

	seq := int64(0)
	step := 0
	for i := 0; i < 10; i++ {
		r.Observe(activeFrame(seq), tick(step))
		seq++
		step++
	}
	r.Observe(nil, tick(step)) // single missed detection
	step++
	for i := 0; i < 10; i++ {
		r.Observe(activeFrame(seq), tick(step))
		seq++
		step++
	}

	if sink.begun != 1 || sink.finished != 0 {
		t.Fatalf("expected one unbroken session, got begun=%d finished=%d", sink.begun, sink.finished)
	}
	if n := len(sink.frames[r.SessionID()]); n != 20 {
		t.Fatalf("expected 20 frames in session, got %d", n)
	}
}

func TestStopDebounceFinalizesAtLastFrame(t *testing.T) {
	sink := newFakeSink()
	r := NewRecorder(sink, Options{})
	now := time.Now()
	tick := func(i int) time.Time { return now.Add(time.Duration(i) * 100 * time.Millisecond) }

	step := 0
	for i := 0; i < 4; i++ {
		r.Observe(activeFrame(int64(i)), tick(step))
		step++
	}
	last := tick(step - 1)
	id := r.SessionID()
	for i := 0; i < DefaultStopDebounce; i++ {
		r.Observe(nil, tick(step))
		step++
	}

	if r.State() != StateIdle {
		t.Fatalf("expected idle after stop debounce, got %d", r.State())
	}
	if sink.finished != 1 {
		t.Fatalf("expected one finalized session, got %d", sink.finished)
	}
	if !sink.endedAt[id].Equal(last) {
		t.Fatalf("expected end timestamp %v, got %v", last, sink.endedAt[id])
	}
	if len(sink.buckets[id]) == 0 {
		t.Fatal("expected an energy index on finalize")
	}
}

func TestTimingGapFinalizesSession(t *testing.T) {
	sink := newFakeSink()
	r := NewRecorder(sink, Options{Gap: 2 * time.Second})
	now := time.Now()

	for i := 0; i < 3; i++ {
		r.Observe(activeFrame(int64(i)), now.Add(time.Duration(i)*100*time.Millisecond))
	}
	if r.State() != StateRecording {
		t.Fatal("expected session to open")
	}

	// Next frame arrives past the gap threshold.
	r.Observe(activeFrame(3), now.Add(5*time.Second))

	if sink.finished != 1 {
		t.Fatalf("expected gap to finalize the session, got %d", sink.finished)
	}
	if r.State() != StateIdle {
		t.Fatalf("expected idle after gap, got %d", r.State())
	}
}

func TestForcedFinalizeClosesOpenSession(t *testing.T) {
	sink := newFakeSink()
	r := NewRecorder(sink, Options{})
	now := time.Now()

	for i := 0; i < 3; i++ {
		r.Observe(activeFrame(int64(i)), now.Add(time.Duration(i)*100*time.Millisecond))
	}
	if err := r.Finalize(now.Add(time.Second)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if r.State() != StateIdle || sink.finished != 1 {
		t.Fatalf("expected forced finalize to close the session, got state=%d finished=%d", r.State(), sink.finished)
	}

	// Idle finalize is a no-op.
	if err := r.Finalize(now.Add(2 * time.Second)); err != nil {
		t.Fatalf("idle finalize: %v", err)
	}
	if sink.finished != 1 {
		t.Fatalf("expected idle finalize to be a no-op, got %d", sink.finished)
	}
}

func TestFrameEnergySumsAmplitudes(t *testing.T) {
	if got := FrameEnergy([]int{1, 2, 3, 4}); got != 10 {
		t.Fatalf("expected energy 10, got %d", got)
	}
	if got := FrameEnergy(nil); got != 0 {
		t.Fatalf("expected empty vector energy 0, got %d", got)
	}
}

func TestEnergyIndexPartitionsFrames(t *testing.T) {
	for _, total := range []int{0, 1, 7, 8, 9, 100, 1000} {
		b := NewEnergyIndexBuilder(8)
		for i := 0; i < total; i++ {
			b.Add(i)
		}
		buckets := b.Buckets()
		if len(buckets) > 8 {
			t.Fatalf("total=%d: expected at most 8 buckets, got %d", total, len(buckets))
		}
		var next int64
		for _, bk := range buckets {
			if bk.FirstFrame != next {
				t.Fatalf("total=%d: bucket %d starts at %d, expected %d", total, bk.Index, bk.FirstFrame, next)
			}
			if bk.FrameCount <= 0 {
				t.Fatalf("total=%d: bucket %d is empty", total, bk.Index)
			}
			next += bk.FrameCount
		}
		if next != int64(total) {
			t.Fatalf("total=%d: buckets cover %d frames", total, next)
		}
	}
}

func TestEnergyIndexAggregatesMax(t *testing.T) {
	b := NewEnergyIndexBuilder(4)
	for i := 0; i < 100; i++ {
		b.Add(i)
	}
	buckets := b.Buckets()
	for _, bk := range buckets {
		// Energies are increasing, so each bucket's max is its last frame.
		want := int(bk.FirstFrame + bk.FrameCount - 1)
		if bk.Energy != want {
			t.Fatalf("bucket %d: expected max energy %d, got %d", bk.Index, want, bk.Energy)
		}
	}
}
