package application

import (
	"errors"
	"sync"
	"time"

	"github.com/jobrunner/regiond/internal/domain"
	"github.com/jobrunner/regiond/internal/ports/output"
)

// subscriberBuffer is the per-subscriber event buffer. Progress events are
// dropped for subscribers that fall behind; the terminal event never is.
const subscriberBuffer = 16

// DownloadHandle represents one in-flight download. It is owned by the
// DownloadRegistry from registration until the terminal event.
type DownloadHandle struct {
	id         domain.RegionID
	descriptor domain.RegionDescriptor
	download   output.TrackedDownload
	startedAt  time.Time

	mu          sync.Mutex
	latest      domain.DownloadEvent
	subscribers map[int]chan domain.DownloadEvent
	nextSub     int
	done        chan struct{}
	err         error
}

func newDownloadHandle(desc domain.RegionDescriptor, download output.TrackedDownload) *DownloadHandle {
	return &DownloadHandle{
		id:          desc.ID,
		descriptor:  desc,
		download:    download,
		startedAt:   time.Now(),
		latest:      domain.ProgressEvent(domain.DownloadProgress{}),
		subscribers: make(map[int]chan domain.DownloadEvent),
		done:        make(chan struct{}),
	}
}

// ID returns the region id the handle is registered under.
func (h *DownloadHandle) ID() domain.RegionID {
	return h.id
}

// Descriptor returns the descriptor the download was started with.
func (h *DownloadHandle) Descriptor() domain.RegionDescriptor {
	return h.descriptor
}

// Done is closed once a terminal event has been published.
func (h *DownloadHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the failure after Done is closed; nil on success.
func (h *DownloadHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Latest returns the most recent event.
func (h *DownloadHandle) Latest() domain.DownloadEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Snapshot returns the handle's externally visible state.
func (h *DownloadHandle) Snapshot() domain.DownloadSnapshot {
	return domain.DownloadSnapshot{
		ID:        h.id,
		Region:    h.Descriptor(),
		Latest:    h.Latest(),
		StartedAt: h.startedAt,
	}
}

// Subscribe returns a channel receiving subsequent events. The channel is
// closed after the terminal event. Subscribing after completion yields the
// terminal event followed by close.
func (h *DownloadHandle) Subscribe() (<-chan domain.DownloadEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan domain.DownloadEvent, subscriberBuffer)
	if h.isDone() {
		ch <- h.latest
		close(ch)
		return ch, func() {}
	}

	id := h.nextSub
	h.nextSub++
	h.subscribers[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publish records an event and fans it out. Events after the terminal one
// are ignored.
func (h *DownloadHandle) publish(ev domain.DownloadEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.isDone() {
		return
	}
	h.latest = ev

	if !ev.IsTerminal() {
		for _, ch := range h.subscribers {
			select {
			case ch <- ev:
			default:
			}
		}
		return
	}

	if ev.Kind == domain.EventFailed {
		msg := ev.Message
		if msg == "" {
			msg = "download failed"
		}
		h.err = errors.New(msg)
	}
	for id, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// Make room by dropping the oldest progress event.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
		close(ch)
		delete(h.subscribers, id)
	}
	close(h.done)
}

func (h *DownloadHandle) isDone() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
