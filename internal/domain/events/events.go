package events

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// Topics published by the transcription pipeline.
const (
	EventJobStarted     = "job:started"
	EventJobCompleted   = "job:completed"
	EventChunkCompleted = "chunk:completed"
	EventChunkFailed    = "chunk:failed"
	EventUsageCharged   = "usage:charged"
)

// JobEventData accompanies job:started and job:completed.
type JobEventData struct {
	JobID           string  `json:"job_id"`
	UserID          string  `json:"user_id"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	ChunkCount      int     `json:"chunk_count,omitempty"`
	Status          string  `json:"status,omitempty"`
}

// ChunkEventData accompanies chunk:completed and chunk:failed.
type ChunkEventData struct {
	JobID    string `json:"job_id"`
	Index    int    `json:"index"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// UsageEventData accompanies usage:charged.
type UsageEventData struct {
	UserID      string  `json:"user_id"`
	Service     string  `json:"service"`
	Credits     float64 `json:"credits"`
	Plan        string  `json:"plan"`
	Approximate bool    `json:"approximate"`
}

var (
	instance evbus.Bus
	once     sync.Once
)

// Get returns the process-wide event bus.
func Get() evbus.Bus {
	once.Do(func() {
		instance = evbus.New()
	})
	return instance
}

// Publish emits an event synchronously.
func Publish(topic string, args ...interface{}) {
	Get().Publish(topic, args...)
}

// Subscribe registers a synchronous handler.
func Subscribe(topic string, fn interface{}) error {
	return Get().Subscribe(topic, fn)
}

// SubscribeAsync registers a handler that runs in its own goroutine.
func SubscribeAsync(topic string, fn interface{}) error {
	return Get().SubscribeAsync(topic, fn, false)
}

// Unsubscribe removes a previously registered handler.
func Unsubscribe(topic string, fn interface{}) error {
	return Get().Unsubscribe(topic, fn)
}
