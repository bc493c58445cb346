package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask      = "task"
	TopicBuild     = "build"
	TopicAggregate = "aggregate"
)

// Event type constants
const (
	EventTypeTaskStarted      = "task.started"
	EventTypeTaskFinished     = "task.finished"
	EventTypeBuildFinished    = "build.finished"
	EventTypeAggregateWritten = "aggregate.written"
)

// TaskStartedEvent is published when a task is handed to the executor.
type TaskStartedEvent struct {
	BuildID   string
	ID        string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskFinishedEvent is published when a task settles, whatever its outcome.
type TaskFinishedEvent struct {
	BuildID   string
	ID        string
	Status    string // SUCCEEDED, FAILED, SKIPPED, NOT-EXECUTED
	Reason    string // Skip reason, if any
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFinishedEvent) EventType() string { return EventTypeTaskFinished }
func (e TaskFinishedEvent) TaskID() string    { return e.ID }

// BuildFinishedEvent is published once per build invocation.
type BuildFinishedEvent struct {
	BuildID     string
	Succeeded   int
	Failed      int
	Skipped     int
	NotExecuted int
	Duration    time.Duration
	Timestamp   time.Time
}

func (e BuildFinishedEvent) EventType() string { return EventTypeBuildFinished }
func (e BuildFinishedEvent) TaskID() string    { return "" }

// AggregateWrittenEvent is published when an aggregate document is written.
type AggregateWrittenEvent struct {
	ID          string // Aggregator task ID
	Path        string
	Available   int
	Unavailable int
	Timestamp   time.Time
}

func (e AggregateWrittenEvent) EventType() string { return EventTypeAggregateWritten }
func (e AggregateWrittenEvent) TaskID() string    { return e.ID }
