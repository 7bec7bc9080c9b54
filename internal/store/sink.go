package store

import (
	"context"
	"time"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
)

// SessionWriter binds the store to a context so the recorder can write
// through it without carrying one itself.
type SessionWriter struct {
	Store *Store
	Ctx   context.Context
}

func (w SessionWriter) BeginSession(start time.Time) (int64, error) {
	return w.Store.BeginSession(w.Ctx, start)
}

func (w SessionWriter) AppendFrame(sessionID int64, frame *model.SpectrumFrame) error {
	return w.Store.AppendFrame(w.Ctx, sessionID, frame)
}

func (w SessionWriter) FinishSession(sessionID int64, end time.Time, buckets []model.EnergyBucket) error {
	return w.Store.FinishSession(w.Ctx, sessionID, end, buckets)
}
