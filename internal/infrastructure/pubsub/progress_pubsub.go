package pubsub

import (
	"fmt"
	"sync"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"

	"github.com/rs/zerolog"
)

// progressChannel is one subscription to a run's progress
type progressChannel struct {
	id     string
	runID  string
	events chan domain.ProgressEvent
}

// ProgressPubSub fans run progress events out to subscribers
type ProgressPubSub struct {
	mu       sync.RWMutex
	channels map[string]*progressChannel
	logger   zerolog.Logger
	nextID   int64
	buffer   int
}

// NewProgressPubSub creates a new progress pub/sub system
func NewProgressPubSub(logger zerolog.Logger) *ProgressPubSub {
	return &ProgressPubSub{
		channels: make(map[string]*progressChannel),
		logger:   logger,
		buffer:   64,
	}
}

var _ ports.ProgressPublisher = (*ProgressPubSub)(nil)

// Subscribe creates a subscription to one run. An empty runID receives every run.
// The returned func unsubscribes and closes the channel.
func (ps *ProgressPubSub) Subscribe(runID string) (<-chan domain.ProgressEvent, func()) {
	ps.mu.Lock()
	ps.nextID++
	channel := &progressChannel{
		id:     fmt.Sprintf("channel-%d", ps.nextID),
		runID:  runID,
		events: make(chan domain.ProgressEvent, ps.buffer),
	}
	ps.channels[channel.id] = channel
	ps.mu.Unlock()

	ps.logger.Debug().
		Str("channelId", channel.id).
		Str("runId", runID).
		Msg("Progress subscription created")

	var once sync.Once
	return channel.events, func() {
		once.Do(func() { ps.unsubscribe(channel.id) })
	}
}

func (ps *ProgressPubSub) unsubscribe(channelID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	channel, exists := ps.channels[channelID]
	if !exists {
		return
	}
	close(channel.events)
	delete(ps.channels, channelID)

	ps.logger.Debug().
		Str("channelId", channelID).
		Msg("Progress subscription removed")
}

// Publish broadcasts an event to every matching subscriber without blocking
func (ps *ProgressPubSub) Publish(event domain.ProgressEvent) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, channel := range ps.channels {
		if channel.runID != "" && channel.runID != event.RunID {
			continue
		}
		select {
		case channel.events <- event:
		default:
			// slow subscriber
			ps.logger.Warn().
				Str("channelId", channel.id).
				Str("runId", event.RunID).
				Msg("Channel buffer full, dropping event")
		}
	}
}

// Stats returns pub/sub statistics
func (ps *ProgressPubSub) Stats() map[string]any {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return map[string]any{
		"active_subscriptions": len(ps.channels),
	}
}
