package audit

import (
	"context"
	"time"

	"github.com/wemarka/wmai/internal/log"
)

// writeTimeout bounds a single audit write.
const writeTimeout = 10 * time.Second

// Recorder writes entries on a best-effort basis: a failed write is logged and
// otherwise ignored.
type Recorder struct {
	store Store
}

// NewRecorder wraps store. A nil store records nothing.
func NewRecorder(store Store) *Recorder {
	if store == nil {
		store = NopStore{}
	}
	return &Recorder{store: store}
}

// Record appends e. It detaches from ctx cancellation so an aborted request
// still leaves its entry behind.
func (r *Recorder) Record(ctx context.Context, e *Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.store.Append(ctx, e); err != nil {
		log.WarnContext(ctx, "failed to write execution log",
			"operation_id", e.OperationID,
			"error", err.Error(),
		)
	}
}

// NopStore discards entries.
type NopStore struct{}

func (NopStore) Append(context.Context, *Entry) error { return nil }
