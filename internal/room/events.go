package room

import (
	"context"
	"errors"

	"github.com/jason-s-yu/takedown/internal/models"
)

// MultiSink publishes every event to each sink in order. A failing sink does
// not stop the others; the failures are joined.
type MultiSink []EventSink

func (s MultiSink) Publish(ctx context.Context, ev models.RoomEvent) error {
	var errs []error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
