// Package feed carries per-node and per-run state transitions to UI and
// monitoring consumers while a run is executing.
package feed

import (
	"context"

	"github.com/petrijr/flowgraph/pkg/api"
)

// ChannelFeed is a StatusFeed backed by a buffered channel, for consumers
// living in the same process (a websocket bridge, a TUI, a test).
//
// Publish never blocks the run: when the buffer is full the oldest event
// is dropped to make room, since a live feed is only useful live.
type ChannelFeed struct {
	ch chan api.StatusEvent
}

var _ api.StatusFeed = (*ChannelFeed)(nil)

// NewChannelFeed creates a feed with the given buffer capacity.
func NewChannelFeed(capacity int) *ChannelFeed {
	if capacity <= 0 {
		capacity = 256
	}
	return &ChannelFeed{ch: make(chan api.StatusEvent, capacity)}
}

func (f *ChannelFeed) Publish(ctx context.Context, ev api.StatusEvent) error {
	for {
		select {
		case f.ch <- ev:
			return nil
		default:
		}
		select {
		case <-f.ch:
			// Dropped the oldest buffered event; retry.
		default:
		}
	}
}

// Events returns the receive side of the feed.
func (f *ChannelFeed) Events() <-chan api.StatusEvent {
	return f.ch
}
