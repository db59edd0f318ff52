package domain

import "time"

// DownloadState is the persisted state of an engine record.
type DownloadState string

const (
	StateInactive DownloadState = "inactive"
	StateActive   DownloadState = "active"
	StateComplete DownloadState = "complete"
	StateFailed   DownloadState = "failed"
)

// IsTerminal reports whether the state is final.
func (s DownloadState) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}

// EventKind is the kind of a download event.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
	EventFailed   EventKind = "failed"
)

// DownloadProgress holds cumulative download counters.
type DownloadProgress struct {
	CompletedResources int64
	RequiredResources  int64
	CompletedBytes     int64
}

// Fraction returns completed/required in [0, 1].
func (p DownloadProgress) Fraction() float64 {
	if p.RequiredResources <= 0 {
		return 0
	}
	f := float64(p.CompletedResources) / float64(p.RequiredResources)
	if f > 1 {
		return 1
	}
	return f
}

// DownloadEvent is a progress update or a terminal notification emitted
// while a region downloads.
type DownloadEvent struct {
	Kind     EventKind
	Progress DownloadProgress
	Message  string // Failure message, empty otherwise
	At       time.Time
}

// IsTerminal reports whether no further events follow.
func (e DownloadEvent) IsTerminal() bool {
	return e.Kind == EventComplete || e.Kind == EventFailed
}

// ProgressEvent creates a progress event.
func ProgressEvent(p DownloadProgress) DownloadEvent {
	return DownloadEvent{Kind: EventProgress, Progress: p, At: time.Now()}
}

// CompleteEvent creates a success event.
func CompleteEvent(p DownloadProgress) DownloadEvent {
	return DownloadEvent{Kind: EventComplete, Progress: p, At: time.Now()}
}

// FailedEvent creates a failure event.
func FailedEvent(p DownloadProgress, message string) DownloadEvent {
	return DownloadEvent{Kind: EventFailed, Progress: p, Message: message, At: time.Now()}
}

// DownloadSnapshot describes a registered in-flight download.
type DownloadSnapshot struct {
	ID        RegionID
	Region    RegionDescriptor
	Latest    DownloadEvent
	StartedAt time.Time
}
