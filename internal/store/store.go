// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides conversation persistence for orchat.
//
// Conversations are kept in a key-value backend behind the kv.Store
// port: one record per conversation body plus a single index record
// holding recency-ordered metadata. The index is the source of truth
// for ordering; bodies are loaded on demand.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/orchat/internal/bus"
	"github.com/jeranaias/orchat/internal/kv"
	"github.com/jeranaias/orchat/internal/util"
)

// Greeting seeds every new or cleared conversation. It is stored like
// any other assistant message but never animates.
const Greeting = "Hello! How can I help you today?"

// DefaultTitle is shown until the first user message names the
// conversation.
const DefaultTitle = "New Chat"

// Key layout in the kv backend.
const (
	indexKey   = "conversations:index"
	bodyPrefix = "conversation:"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// =============================================================================
// TYPES
// =============================================================================

// Message is a single chat message.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// Fresh marks a message that has never been displayed. Fresh
	// assistant messages animate with the typewriter reveal; everything
	// replayed from history renders instantly.
	Fresh bool `json:"fresh,omitempty"`
}

// Conversation holds a full message history plus derived metadata.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Preview   string     `json:"preview"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Messages  []*Message `json:"messages"`
}

// Meta is the index entry for one conversation.
type Meta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Policy controls derived metadata and retention.
type Policy struct {
	// TitleMaxChars bounds the title derived from the first user
	// message.
	TitleMaxChars int

	// PreviewMaxChars bounds the sidebar preview derived from the
	// latest user message.
	PreviewMaxChars int

	// MaxConversations caps stored conversations; the least recently
	// updated are evicted past the cap. 0 means unlimited.
	MaxConversations int

	// RetentionDays removes conversations not updated within the
	// window. 0 disables age-based pruning.
	RetentionDays int
}

// DefaultPolicy matches the shipped configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		TitleMaxChars:    20,
		PreviewMaxChars:  30,
		MaxConversations: 100,
		RetentionDays:    0,
	}
}

// =============================================================================
// STORE
// =============================================================================

// Store manages conversations in a kv backend. Not safe for concurrent
// use; the Bubble Tea event loop serializes access.
type Store struct {
	kv     kv.Store
	bus    *bus.Bus
	policy Policy

	// now is replaceable for tests.
	now func() time.Time
}

// New creates a store over the given backend. The bus may be nil.
func New(backend kv.Store, eventBus *bus.Bus, policy Policy) *Store {
	return &Store{
		kv:     backend,
		bus:    eventBus,
		policy: policy,
		now:    time.Now,
	}
}

// SetPolicy replaces the policy, used when settings reload.
func (s *Store) SetPolicy(policy Policy) {
	s.policy = policy
}

// =============================================================================
// CREATION AND LOOKUP
// =============================================================================

// Create makes a new conversation seeded with the greeting and places
// it at the front of the index.
func (s *Store) Create() (*Conversation, error) {
	now := s.now()
	conv := &Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []*Message{{
			ID:        uuid.NewString(),
			Role:      "assistant",
			Content:   Greeting,
			CreatedAt: now,
			Fresh:     false,
		}},
	}

	if err := s.persist(conv); err != nil {
		return nil, err
	}
	s.publish(bus.Event{Kind: bus.KindConversationChanged, ConversationID: conv.ID})
	return conv, nil
}

// Get loads a conversation body. A conversation present in the index
// but missing its body (interrupted write, manual file removal) is
// recovered as a fresh greeting-only conversation rather than failing.
func (s *Store) Get(id string) (*Conversation, error) {
	data, err := s.kv.Get(bodyPrefix + id)
	if errors.Is(err, kv.ErrNotFound) {
		if meta, ok := s.indexEntry(id); ok {
			return s.recover(meta)
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		log.Printf("store: corrupt body for %s, recovering: %v", id, err)
		if meta, ok := s.indexEntry(id); ok {
			return s.recover(meta)
		}
		return nil, ErrNotFound
	}
	return &conv, nil
}

// recover rebuilds a greeting-only conversation from an index entry.
func (s *Store) recover(meta Meta) (*Conversation, error) {
	now := s.now()
	conv := &Conversation{
		ID:        meta.ID,
		Title:     meta.Title,
		Preview:   meta.Preview,
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []*Message{{
			ID:        uuid.NewString(),
			Role:      "assistant",
			Content:   Greeting,
			CreatedAt: now,
		}},
	}
	if err := s.persist(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// List returns conversation metadata, most recently updated first.
func (s *Store) List() []Meta {
	return s.loadIndex()
}

// MostRecent returns the meta of the most recently updated
// conversation, or false if none exist.
func (s *Store) MostRecent() (Meta, bool) {
	idx := s.loadIndex()
	if len(idx) == 0 {
		return Meta{}, false
	}
	return idx[0], true
}

// =============================================================================
// MUTATION
// =============================================================================

// Append adds a message to a conversation, refreshes derived metadata,
// persists, and moves the conversation to the front of the index.
func (s *Store) Append(convID, role, content string, fresh bool) (*Message, error) {
	conv, err := s.Get(convID)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
		Fresh:     fresh,
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.CreatedAt
	s.refreshDerived(conv)

	if err := s.persist(conv); err != nil {
		return nil, err
	}
	s.publish(bus.Event{Kind: bus.KindMessageAppended, ConversationID: convID, MessageID: msg.ID})
	return msg, nil
}

// MarkSeen clears the Fresh flag on a message after its reveal
// completes, so a replay from history renders instantly.
func (s *Store) MarkSeen(convID, msgID string) error {
	conv, err := s.Get(convID)
	if err != nil {
		return err
	}
	changed := false
	for _, m := range conv.Messages {
		if m.ID == msgID && m.Fresh {
			m.Fresh = false
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.persist(conv)
}

// Clear resets a conversation to the greeting, keeping its identity.
func (s *Store) Clear(convID string) (*Conversation, error) {
	conv, err := s.Get(convID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	conv.Messages = []*Message{{
		ID:        uuid.NewString(),
		Role:      "assistant",
		Content:   Greeting,
		CreatedAt: now,
	}}
	conv.Title = DefaultTitle
	conv.Preview = ""
	conv.UpdatedAt = now

	if err := s.persist(conv); err != nil {
		return nil, err
	}
	s.publish(bus.Event{Kind: bus.KindConversationChanged, ConversationID: convID})
	return conv, nil
}

// Delete removes a conversation body and its index entry. Deleting an
// unknown ID is a no-op.
func (s *Store) Delete(convID string) error {
	if err := s.kv.Remove(bodyPrefix + convID); err != nil {
		return err
	}

	idx := s.loadIndex()
	out := idx[:0]
	for _, m := range idx {
		if m.ID != convID {
			out = append(out, m)
		}
	}
	if err := s.saveIndex(out); err != nil {
		return err
	}
	s.publish(bus.Event{Kind: bus.KindConversationChanged, ConversationID: convID})
	return nil
}

// Window returns the last n messages of a conversation for the
// outbound context window. n <= 0 returns all messages.
func (s *Store) Window(convID string, n int) ([]*Message, error) {
	conv, err := s.Get(convID)
	if err != nil {
		return nil, err
	}
	msgs := conv.Messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

// =============================================================================
// RETENTION
// =============================================================================

// PruneOlderThan deletes conversations not updated within the
// configured retention window. Returns the number removed.
func (s *Store) PruneOlderThan(days int) (int, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -days)

	idx := s.loadIndex()
	kept := idx[:0]
	removed := 0
	for _, m := range idx {
		if m.UpdatedAt.Before(cutoff) {
			if err := s.kv.Remove(bodyPrefix + m.ID); err != nil {
				return removed, err
			}
			removed++
			continue
		}
		kept = append(kept, m)
	}
	if removed > 0 {
		if err := s.saveIndex(kept); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// enforceCap evicts the least recently updated conversations past the
// MaxConversations limit. idx must be recency ordered.
func (s *Store) enforceCap(idx []Meta) []Meta {
	max := s.policy.MaxConversations
	if max <= 0 || len(idx) <= max {
		return idx
	}
	for _, m := range idx[max:] {
		if err := s.kv.Remove(bodyPrefix + m.ID); err != nil {
			log.Printf("store: evicting %s: %v", m.ID, err)
		}
	}
	return idx[:max]
}

// =============================================================================
// DERIVED METADATA
// =============================================================================

// refreshDerived recomputes title and preview from the user messages.
// The title comes from the first user message and is sticky; the
// preview tracks the latest one.
func (s *Store) refreshDerived(conv *Conversation) {
	var first, latest string
	for _, m := range conv.Messages {
		if m.Role != "user" || m.Content == "" {
			continue
		}
		if first == "" {
			first = m.Content
		}
		latest = m.Content
	}
	if first != "" {
		conv.Title = util.TruncateRunes(util.Flatten(first), s.policy.TitleMaxChars)
	}
	if latest != "" {
		conv.Preview = util.TruncateRunes(util.Flatten(latest), s.policy.PreviewMaxChars)
	}
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// persist writes the conversation body and promotes it to the front of
// the index. A quota failure evicts the oldest conversation and retries
// once; a second failure drops the write with a log line so the session
// can continue in memory.
func (s *Store) persist(conv *Conversation) error {
	body, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}

	err = s.kv.Set(bodyPrefix+conv.ID, string(body))
	if errors.Is(err, kv.ErrQuotaExceeded) {
		if evicted := s.evictOldest(conv.ID); evicted {
			err = s.kv.Set(bodyPrefix+conv.ID, string(body))
		}
	}
	if errors.Is(err, kv.ErrQuotaExceeded) {
		log.Printf("store: quota exhausted, conversation %s not persisted", conv.ID)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}

	return s.promote(conv)
}

// promote moves conv to the front of the index, updating its metadata
// and enforcing the retention cap.
func (s *Store) promote(conv *Conversation) error {
	idx := s.loadIndex()
	out := make([]Meta, 0, len(idx)+1)
	out = append(out, Meta{
		ID:        conv.ID,
		Title:     conv.Title,
		Preview:   conv.Preview,
		UpdatedAt: conv.UpdatedAt,
	})
	for _, m := range idx {
		if m.ID != conv.ID {
			out = append(out, m)
		}
	}
	return s.saveIndex(s.enforceCap(out))
}

// evictOldest removes the least recently updated conversation other
// than keep. Reports whether anything was evicted.
func (s *Store) evictOldest(keep string) bool {
	idx := s.loadIndex()
	for i := len(idx) - 1; i >= 0; i-- {
		if idx[i].ID == keep {
			continue
		}
		victim := idx[i]
		if err := s.kv.Remove(bodyPrefix + victim.ID); err != nil {
			log.Printf("store: quota eviction of %s failed: %v", victim.ID, err)
			return false
		}
		if err := s.saveIndex(append(idx[:i], idx[i+1:]...)); err != nil {
			return false
		}
		log.Printf("store: evicted %s to reclaim space", victim.ID)
		return true
	}
	return false
}

func (s *Store) loadIndex() []Meta {
	data, err := s.kv.Get(indexKey)
	if err != nil {
		return nil
	}
	var idx []Meta
	if err := json.Unmarshal([]byte(data), &idx); err != nil {
		log.Printf("store: corrupt index, rebuilding empty: %v", err)
		return nil
	}
	// Defensive re-sort: the index is maintained in order, but external
	// edits to the backend must not break listing.
	sort.SliceStable(idx, func(i, j int) bool {
		return idx[i].UpdatedAt.After(idx[j].UpdatedAt)
	})
	return idx
}

func (s *Store) saveIndex(idx []Meta) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := s.kv.Set(indexKey, string(data)); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func (s *Store) indexEntry(id string) (Meta, bool) {
	for _, m := range s.loadIndex() {
		if m.ID == id {
			return m, true
		}
	}
	return Meta{}, false
}

func (s *Store) publish(ev bus.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
