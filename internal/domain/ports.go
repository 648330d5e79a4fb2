package domain

import (
	"time"
)

type EventType uint32

const (
	EventRead  EventType = 0x1
	EventWrite EventType = 0x4 // EPOLLOUT
	// EventError is delivered for EPOLLERR and EPOLLHUP regardless of interest.
	EventError EventType = 0x8
)

type EventHandler interface {
	HandleEvent(fd int, event EventType) error
	// Tick is called from the loop goroutine at least once per tick interval.
	Tick(now time.Time)
}

type EventLoop interface {
	Register(fd int, events EventType) error
	Modify(fd int, events EventType) error
	Unregister(fd int) error
	Run(handler EventHandler) error
	Stop()
}

// EventSink receives connection lifecycle events. Implementations are called
// from the loop goroutine and must not block.
type EventSink interface {
	Emit(ev Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Emit(Event) {}
