package streaming

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types on the session stream.
const (
	TypeProgress = "progress"
	TypeComplete = "complete"
	TypeError    = "error"
)

// Progress is the percent/step pair carried by progress events.
type Progress struct {
	Percent     int    `json:"percent"`
	CurrentStep string `json:"currentStep"`
}

// TreeSnapshot summarizes a stage's reasoning tree for consumers.
type TreeSnapshot struct {
	NodeCount         int `json:"nodeCount"`
	MaxDepth          int `json:"maxDepth"`
	NodesWithFindings int `json:"nodesWithFindings"`
}

// StageSummary is the stage descriptor sent when staging completes.
type StageSummary struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Event is one session stream item, serialized as a single JSON object per
// line for downstream consumers.
type Event struct {
	SessionID string         `json:"session_id"`
	EventType string         `json:"eventType"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Stage     *int           `json:"stage,omitempty"`
	Agent     string         `json:"agent,omitempty"`
	Progress  *Progress      `json:"progress,omitempty"`
	Tree      *TreeSnapshot  `json:"tree,omitempty"`
	Analysis  string         `json:"analysis,omitempty"`
	Stages    []StageSummary `json:"stages,omitempty"`
	Completed bool           `json:"completed,omitempty"`
	Seq       uint64         `json:"seq"`
}

// Marshal returns the wire form of the event.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager provides in-memory pub/sub for session events with a per-session
// ring buffer for replay and Last-Event-ID style resume.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
	mirrors     []Mirror
}

// Mirror receives every published event, best-effort. Used to fan events out
// to Redis so external consumers survive a process restart.
type Mirror interface {
	Publish(sessionID string, evt Event)
}

var (
	defaultMgr      *Manager
	once            sync.Once
	defaultCapacity = 256
)

// Get returns the global streaming manager, initializing it lazily.
func Get() *Manager {
	once.Do(func() {
		defaultMgr = NewManager(defaultCapacity)
	})
	return defaultMgr
}

// NewManager builds a manager with the given ring capacity.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// AddMirror registers a best-effort secondary sink for published events.
func (m *Manager) AddMirror(mr Mirror) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirrors = append(m.mirrors, mr)
}

// Subscribe adds a subscriber channel for a session; caller must drain and
// call Unsubscribe.
func (m *Manager) Subscribe(sessionID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[sessionID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(sessionID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[sessionID]; ok {
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(m.subscribers, sessionID)
		}
	}
}

// Publish assigns a sequence number, records the event in history, and sends
// it to all subscribers (non-blocking; slow subscribers drop).
func (m *Manager) Publish(sessionID string, evt Event) {
	evt.SessionID = sessionID
	m.mu.Lock()
	rg := m.history[sessionID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[sessionID] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)
	subs := m.subscribers[sessionID]
	mirrors := m.mirrors
	m.mu.Unlock()

	for _, mr := range mirrors {
		mr.Publish(sessionID, evt)
	}
	for ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ReplaySince returns events with Seq > since (best-effort within ring capacity).
func (m *Manager) ReplaySince(sessionID string, since uint64) []Event {
	m.mu.RLock()
	rg := m.history[sessionID]
	m.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// ring is a fixed-capacity ring buffer of events.
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
