// Package events provides the in-process event bus connecting the scan
// orchestrator to its observers.
package events

import (
	"sync"

	"sptrace/domain/events"
	"sptrace/logging"
)

// ScanEventBus provides type-safe event publishing and subscription for scan
// lifecycle events. Handlers run asynchronously so a slow observer never
// blocks the scan loop.
type ScanEventBus struct {
	mu     sync.RWMutex
	logger *logging.Logger

	jobStartedHandlers   []func(events.JobStartedEvent)
	jobCompletedHandlers []func(events.JobCompletedEvent)
	jobSkippedHandlers   []func(events.JobSkippedEvent)
	runCompletedHandlers []func(events.RunCompletedEvent)
}

// NewScanEventBus creates a new typed scan event bus
func NewScanEventBus() *ScanEventBus {
	return &ScanEventBus{
		logger:               logging.Default().WithComponent("scan_event_bus"),
		jobStartedHandlers:   make([]func(events.JobStartedEvent), 0),
		jobCompletedHandlers: make([]func(events.JobCompletedEvent), 0),
		jobSkippedHandlers:   make([]func(events.JobSkippedEvent), 0),
		runCompletedHandlers: make([]func(events.RunCompletedEvent), 0),
	}
}

// Subscribe methods for each event type

func (bus *ScanEventBus) OnJobStarted(handler func(events.JobStartedEvent)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.jobStartedHandlers = append(bus.jobStartedHandlers, handler)
}

func (bus *ScanEventBus) OnJobCompleted(handler func(events.JobCompletedEvent)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.jobCompletedHandlers = append(bus.jobCompletedHandlers, handler)
}

func (bus *ScanEventBus) OnJobSkipped(handler func(events.JobSkippedEvent)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.jobSkippedHandlers = append(bus.jobSkippedHandlers, handler)
}

func (bus *ScanEventBus) OnRunCompleted(handler func(events.RunCompletedEvent)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.runCompletedHandlers = append(bus.runCompletedHandlers, handler)
}

// Publish methods for each event type

func (bus *ScanEventBus) PublishJobStarted(event events.JobStartedEvent) {
	bus.mu.RLock()
	handlers := make([]func(events.JobStartedEvent), len(bus.jobStartedHandlers))
	copy(handlers, bus.jobStartedHandlers)
	bus.mu.RUnlock()

	for _, handler := range handlers {
		go func(h func(events.JobStartedEvent)) {
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked in JobStarted",
						"job_url", event.Job.URL,
						"panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}

func (bus *ScanEventBus) PublishJobCompleted(event events.JobCompletedEvent) {
	bus.mu.RLock()
	handlers := make([]func(events.JobCompletedEvent), len(bus.jobCompletedHandlers))
	copy(handlers, bus.jobCompletedHandlers)
	bus.mu.RUnlock()

	for _, handler := range handlers {
		go func(h func(events.JobCompletedEvent)) {
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked in JobCompleted",
						"job_url", event.Job.URL,
						"panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}

func (bus *ScanEventBus) PublishJobSkipped(event events.JobSkippedEvent) {
	bus.mu.RLock()
	handlers := make([]func(events.JobSkippedEvent), len(bus.jobSkippedHandlers))
	copy(handlers, bus.jobSkippedHandlers)
	bus.mu.RUnlock()

	for _, handler := range handlers {
		go func(h func(events.JobSkippedEvent)) {
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked in JobSkipped",
						"job_url", event.Job.URL,
						"panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}

func (bus *ScanEventBus) PublishRunCompleted(event events.RunCompletedEvent) {
	bus.mu.RLock()
	handlers := make([]func(events.RunCompletedEvent), len(bus.runCompletedHandlers))
	copy(handlers, bus.runCompletedHandlers)
	bus.mu.RUnlock()

	for _, handler := range handlers {
		go func(h func(events.RunCompletedEvent)) {
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked in RunCompleted",
						"run_id", event.Run.ID,
						"panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}
