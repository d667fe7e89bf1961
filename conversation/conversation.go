// Package conversation keeps the ordered log of conversation items and
// accumulates streamed deltas into them.
package conversation

import (
	"errors"
	"slices"
	"sync"

	"github.com/codewandler/realtime-go/events"
)

var (
	ErrUnknownItem      = errors.New("unknown conversation item")
	ErrAlreadyCompleted = errors.New("conversation item already completed")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Item is one turn unit accumulated from streamed deltas.
type Item struct {
	ID        string
	Type      events.ItemType
	Role      events.Role
	Status    Status
	Name      string
	CallID    string
	Content   []events.Content
	Formatted Formatted
}

// Formatted holds everything derived from deltas.
type Formatted struct {
	Text       string
	Transcript string
	Audio      [][]byte
	Tool       *ToolCall
}

// ToolCall is a function call whose arguments are still being streamed.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments string
}

// AudioBytes concatenates all audio chunks.
func (f Formatted) AudioBytes() []byte {
	var n int
	for _, c := range f.Audio {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for _, c := range f.Audio {
		out = append(out, c...)
	}
	return out
}

func (it *Item) clone() Item {
	c := *it
	c.Content = slices.Clone(it.Content)
	if it.Formatted.Audio != nil {
		c.Formatted.Audio = make([][]byte, len(it.Formatted.Audio))
		for i, chunk := range it.Formatted.Audio {
			c.Formatted.Audio[i] = slices.Clone(chunk)
		}
	}
	if it.Formatted.Tool != nil {
		tc := *it.Formatted.Tool
		c.Formatted.Tool = &tc
	}
	return c
}

// Store is safe for concurrent use. Reads return copies.
type Store struct {
	mu           sync.RWMutex
	items        []*Item
	lookup       map[string]*Item
	pendingAudio []byte
}

func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset drops all items, the index and the pending audio marker.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.lookup = make(map[string]*Item)
	s.pendingAudio = nil
}

// Add appends a new item. Items without an id or with an id already in use
// are rejected.
func (s *Store) Add(src events.Item) (Item, bool) {
	if src.ID == "" {
		return Item{}, false
	}

	it := &Item{
		ID:      src.ID,
		Type:    src.Type,
		Role:    src.Role,
		Status:  StatusPending,
		Name:    src.Name,
		CallID:  src.CallID,
		Content: slices.Clone(src.Content),
	}
	for _, c := range src.Content {
		if c.Type == events.ContentText || c.Type == events.ContentInputText {
			it.Formatted.Text += c.Text
		}
	}
	if src.Type == events.ItemTypeFunctionCall {
		it.Formatted.Tool = &ToolCall{CallID: src.CallID, Name: src.Name, Arguments: src.Arguments}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lookup[src.ID]; exists {
		return Item{}, false
	}
	s.lookup[src.ID] = it
	s.items = append(s.items, it)

	return it.clone(), true
}

func (s *Store) update(id string, fn func(it *Item)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.lookup[id]
	if !ok {
		return false
	}
	fn(it)
	return true
}

func (s *Store) AppendAudio(id string, chunk []byte) bool {
	return s.update(id, func(it *Item) {
		it.Formatted.Audio = append(it.Formatted.Audio, slices.Clone(chunk))
	})
}

func (s *Store) AppendText(id, delta string) bool {
	return s.update(id, func(it *Item) {
		it.Formatted.Text += delta
	})
}

func (s *Store) AppendTranscript(id, delta string) bool {
	return s.update(id, func(it *Item) {
		it.Formatted.Transcript += delta
	})
}

// AppendArguments extends the pending call arguments of a function call item.
func (s *Store) AppendArguments(id, callID, delta string) bool {
	return s.update(id, func(it *Item) {
		if it.Formatted.Tool == nil {
			it.Formatted.Tool = &ToolCall{CallID: it.CallID, Name: it.Name}
		}
		if it.Formatted.Tool.CallID == "" {
			it.Formatted.Tool.CallID = callID
		}
		it.Formatted.Tool.Arguments += delta
	})
}

// Complete marks an item completed. The transition happens at most once.
func (s *Store) Complete(id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.lookup[id]
	if !ok {
		return Item{}, ErrUnknownItem
	}
	if it.Status == StatusCompleted {
		return it.clone(), ErrAlreadyCompleted
	}
	it.Status = StatusCompleted
	return it.clone(), nil
}

func (s *Store) Get(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.lookup[id]
	if !ok {
		return Item{}, false
	}
	return it.clone(), true
}

// History returns the last limit items, or all of them when limit <= 0.
func (s *Store) History(limit int) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.items
	if limit > 0 && limit < len(src) {
		src = src[len(src)-limit:]
	}
	out := make([]Item, len(src))
	for i, it := range src {
		out[i] = it.clone()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// SetPendingAudio remembers the last committed input audio.
func (s *Store) SetPendingAudio(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAudio = slices.Clone(b)
}

func (s *Store) PendingAudio() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.pendingAudio)
}
