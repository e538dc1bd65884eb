package directions

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"pti/dm/internal/metrics"
	"pti/dm/internal/sessionlog"
)

// FixtureFinder answers every query from a recorded Google Directions
// response on disk. It is used for offline replays.
type FixtureFinder struct {
	Path     string
	Location *time.Location
	// Logger may be nil.
	Logger *zap.Logger
}

// Directions implements Finder. The departure and arrival times are ignored.
func (f FixtureFinder) Directions(ctx context.Context, conn ConnInfo, _, _ time.Time) (*Directions, error) {
	start := time.Now()
	body, err := os.ReadFile(f.Path)
	if err != nil {
		metrics.ObserveProvider("fixture", "transport_error", start)
		return &Directions{Conn: conn}, fmt.Errorf("fixture directions: %w", err)
	}
	if err := sessionlog.Record(ctx, "fixture-directions", body); err != nil && f.Logger != nil {
		f.Logger.Warn("could not log directions response", zap.Error(err))
	}
	d, err := ParseGoogle(body, conn, f.Location)
	if err != nil {
		metrics.ObserveProvider("fixture", "bad_response", start)
		return d, err
	}
	metrics.ObserveProvider("fixture", "ok", start)
	return d, nil
}
