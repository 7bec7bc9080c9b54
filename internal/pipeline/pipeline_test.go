package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/ocr"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/record"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/screen"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/simulator"
)

// memSink collects recorded sessions behind a mutex so tests can inspect
// it while the decode worker runs.
type memSink struct {
	mu       sync.Mutex
	nextID   int64
	begun    int
	finished int
	frames   map[int64]int
}

func newMemSink() *memSink {
	return &memSink{frames: make(map[int64]int)}
}

func (s *memSink) BeginSession(start time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.begun++
	return s.nextID, nil
}

func (s *memSink) AppendFrame(id int64, f *model.SpectrumFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[id]++
	return nil
}

func (s *memSink) FinishSession(id int64, end time.Time, buckets []model.EnergyBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished++
	return nil
}

func (s *memSink) counts() (begun, finished int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begun, s.finished
}

// feed pumps n simulated frames straight through the decode path.
func feed(t *testing.T, p *Pipeline, dev *simulator.Device, n int, base time.Time) {
	t.Helper()
	buf := make([]byte, 4096)
	for i := 0; i < n; i++ {
		r, err := dev.Read(buf)
		if err != nil {
			t.Fatalf("simulator read: %v", err)
		}
		if err := p.process(buf[:r], base.Add(time.Duration(i)*100*time.Millisecond)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
}

func TestDecodesSimulatedStream(t *testing.T) {
	dev := simulator.New(1, 0)
	sink := newMemSink()
	p := New(dev, sink, Options{})

	feed(t, p, dev, 20, time.Now())

	snap := p.Snapshot()
	if !snap.Synced {
		t.Fatal("expected reconstruction to be synced")
	}
	if !snap.Active {
		t.Fatal("expected spectrum view to be detected")
	}
	if snap.Frame == nil || len(snap.Frame.Amplitudes) != model.SpectrumCols {
		t.Fatalf("expected a full amplitude vector, got %+v", snap.Frame)
	}
	if got := snap.Fields[ocr.TagCenterFreq]; got.Value != "145.50000" {
		t.Fatalf("expected center frequency readout, got %+v", got)
	}
	if !snap.Recording {
		t.Fatal("expected recording to have started")
	}
	begun, _ := sink.counts()
	if begun != 1 {
		t.Fatalf("expected one session, got %d", begun)
	}
	if sink.frames[1] < record.DefaultStartDebounce {
		t.Fatalf("expected back-filled frames, got %d", sink.frames[1])
	}
}

// failSink accepts the session open and rejects every frame write.
type failSink struct {
	mu       sync.Mutex
	nextID   int64
	finished int
}

func (s *failSink) BeginSession(start time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *failSink) AppendFrame(id int64, f *model.SpectrumFrame) error {
	return errors.New("disk full")
}

func (s *failSink) FinishSession(id int64, end time.Time, buckets []model.EnergyBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished++
	return nil
}

func TestStoreFailureAbandonsSessionOnly(t *testing.T) {
	dev := simulator.New(4, 0)
	sink := &failSink{}
	p := New(dev, sink, Options{})

	feed(t, p, dev, 20, time.Now())

	snap := p.Snapshot()
	if !snap.Synced || snap.Frame == nil {
		t.Fatal("expected decoding to continue after the store failure")
	}
	if snap.Recording {
		t.Fatal("expected the failed session to be dropped")
	}
	if snap.RecordErr == nil {
		t.Fatal("expected the store failure to surface on the snapshot")
	}
	if sink.finished == 0 {
		t.Fatal("expected the failed session to be closed")
	}
}

// screenPacket wraps a framebuffer in a full-refresh wire packet.
func screenPacket(fb *screen.Framebuffer) []byte {
	pkt := []byte{0xAA, 0x55, 0x01, 0x04, 0x00}
	return append(pkt, fb.Bytes()...)
}

func TestDuplicatePacketIsNotARecognitionPass(t *testing.T) {
	var first screen.Framebuffer
	ocr.LargeFont.DrawText(&first, 36, 8, "145.50000")
	var second screen.Framebuffer
	ocr.LargeFont.DrawText(&second, 36, 8, "146.52500")

	p := New(simulator.New(5, 0), nil, Options{})
	now := time.Now()

	if err := p.process(screenPacket(&first), now); err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := p.Snapshot().Fields[ocr.TagCenterFreq].Value; got != "145.50000" {
		t.Fatalf("expected initial readout, got %q", got)
	}

	// One real pass of the new value, then a retransmitted duplicate.
	// The duplicate leaves the bitmap unchanged and must not count as a
	// confirmation pass.
	if err := p.process(screenPacket(&second), now.Add(100*time.Millisecond)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.process(screenPacket(&second), now.Add(200*time.Millisecond)); err != nil {
		t.Fatalf("process duplicate: %v", err)
	}
	if got := p.Snapshot().Fields[ocr.TagCenterFreq].Value; got != "145.50000" {
		t.Fatalf("expected change to wait for a second real pass, got %q", got)
	}

	// A genuinely changed frame delivers the second pass.
	second.SetPixel(0, 63, true)
	if err := p.process(screenPacket(&second), now.Add(300*time.Millisecond)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := p.Snapshot().Fields[ocr.TagCenterFreq].Value; got != "146.52500" {
		t.Fatalf("expected confirmed readout, got %q", got)
	}
}

func TestLineGapInvalidatesReconstruction(t *testing.T) {
	dev := simulator.New(2, 0)
	p := New(dev, nil, Options{})
	now := time.Now()

	feed(t, p, dev, 5, now)
	if !p.Snapshot().Synced {
		t.Fatal("expected sync before the gap")
	}

	// Orphan bytes on the line mean packets were lost in between.
	if err := p.process([]byte{0x13, 0x37, 0x00}, now.Add(time.Second)); err != nil {
		t.Fatalf("process garbage: %v", err)
	}
	p.publish(now.Add(time.Second))

	snap := p.Snapshot()
	if snap.Synced {
		t.Fatal("expected gap to invalidate reconstruction")
	}
	if snap.BytesLost == 0 {
		t.Fatal("expected lost bytes to be counted")
	}
}

func TestRunFinalizesOnCancel(t *testing.T) {
	dev := simulator.New(3, time.Millisecond)
	sink := newMemSink()
	p := New(dev, sink, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if p.Snapshot().Recording {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("recording never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	_, finished := sink.counts()
	if finished != 1 {
		t.Fatalf("expected forced finalize on shutdown, got %d", finished)
	}
}
