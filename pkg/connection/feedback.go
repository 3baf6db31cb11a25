package connection

import (
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"
)

const DefaultCooldown = time.Second

// Notification is a user-visible rejection message.
type Notification struct {
	ID      string    `json:"id"`
	Reason  string    `json:"reason"`
	Count   int       `json:"count"`
	FirstAt time.Time `json:"firstAt"`
	LastAt  time.Time `json:"lastAt"`
}

// Sink shows notifications to the user.
type Sink interface {
	Notify(Notification)
	Update(Notification)
}

// Feedback reports connection rejections. A reason repeated within the
// cooldown updates the visible notification instead of raising a new one.
type Feedback struct {
	sink     Sink
	cooldown time.Duration
	clock    func() time.Time

	mu     sync.Mutex
	recent map[string]*Notification
	seq    int
}

func NewFeedback(sink Sink, cooldown time.Duration, clock func() time.Time) *Feedback {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	if clock == nil {
		clock = time.Now
	}

	return &Feedback{
		sink:     sink,
		cooldown: cooldown,
		clock:    clock,
		recent:   make(map[string]*Notification),
	}
}

// Reject reports a rejection reason. It returns true when a new notification
// was raised.
func (f *Feedback) Reject(reason string) bool {
	f.mu.Lock()

	now := f.clock()
	f.expire(now)

	n, ok := f.recent[reason]
	if ok {
		n.Count++
		n.LastAt = now
		out := *n
		f.mu.Unlock()

		if f.sink != nil {
			f.sink.Update(out)
		}

		return false
	}

	f.seq++
	n = &Notification{
		ID:      strconv.Itoa(f.seq),
		Reason:  reason,
		Count:   1,
		FirstAt: now,
		LastAt:  now,
	}
	f.recent[reason] = n
	out := *n
	f.mu.Unlock()

	if f.sink != nil {
		f.sink.Notify(out)
	}

	return true
}

func (f *Feedback) expire(now time.Time) {
	for reason, n := range f.recent {
		if now.Sub(n.LastAt) >= f.cooldown {
			delete(f.recent, reason)
		}
	}
}

const defaultMemorySinkSize = 50

// MemorySink keeps the most recent notifications for display.
type MemorySink struct {
	mu    sync.RWMutex
	items []Notification
	size  int
}

func NewMemorySink(size int) *MemorySink {
	if size <= 0 {
		size = defaultMemorySinkSize
	}

	return &MemorySink{size: size}
}

func (s *MemorySink) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, n)
	if len(s.items) > s.size {
		s.items = slices.Delete(s.items, 0, len(s.items)-s.size)
	}
}

func (s *MemorySink) Update(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == n.ID {
			s.items[i] = n

			return
		}
	}

	s.items = append(s.items, n)
}

// List returns the notifications, oldest first.
func (s *MemorySink) List() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.items)
}

func (s *MemorySink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
}

// LogSink writes notifications to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(n Notification) {
	s.logger().Warn("Connection rejected", "reason", n.Reason)
}

func (s LogSink) Update(n Notification) {
	s.logger().Debug("Connection rejected again", "reason", n.Reason, "count", n.Count)
}

func (s LogSink) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}

	return s.Logger
}

// MultiSink fans notifications out to several sinks.
type MultiSink []Sink

func (m MultiSink) Notify(n Notification) {
	for _, s := range m {
		s.Notify(n)
	}
}

func (m MultiSink) Update(n Notification) {
	for _, s := range m {
		s.Update(n)
	}
}
