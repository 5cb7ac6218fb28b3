package segments

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a segment id is not in the store.
var ErrNotFound = errors.New("segment not found")

// Store holds the session's segments in creation order.
type Store struct {
	mu       sync.RWMutex
	duration float64
	items    []Segment
	now      func() time.Time
	newID    func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides segment id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewStore creates an empty store for a recording of the given duration in
// seconds.
func NewStore(duration float64, opts ...Option) *Store {
	s := &Store{
		duration: duration,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Duration returns the recording duration ranges are validated against.
func (s *Store) Duration() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.duration
}

// SetDuration updates the recording duration. Existing segments are not
// revalidated until submission.
func (s *Store) SetDuration(duration float64) {
	s.mu.Lock()
	s.duration = duration
	s.mu.Unlock()
}

// Create validates the draft and appends a new segment. An empty name is
// replaced with the default name for the draft's type.
func (s *Store) Create(d Draft) (Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" && d.Type.Valid() {
		d.Name = DefaultName(d.Type, s.items)
	}
	if err := ValidateDraft(d, s.duration); err != nil {
		return Segment{}, err
	}

	now := s.now()
	seg := Segment{
		ID:            s.newID(),
		Name:          d.Name,
		Type:          d.Type,
		TimeRange:     d.TimeRange,
		ReferenceData: d.Reference(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.items = append(s.items, seg)
	return seg.Clone(), nil
}

// Update applies patch to the segment with the given id. The patched segment
// is validated as a whole; on failure the store is unchanged.
func (s *Store) Update(id string, patch Patch) (Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return Segment{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	updated := patch.apply(s.items[idx].Clone())
	if fields := ValidateSegment(updated, s.duration); len(fields) > 0 {
		return Segment{}, validationError("invalid analysis segment", fields)
	}
	updated.UpdatedAt = s.now()
	s.items[idx] = updated
	return updated.Clone(), nil
}

// Apply stores a committed draft: a new segment when editingID is empty,
// otherwise an update of that segment.
func (s *Store) Apply(d Draft, editingID string) (Segment, error) {
	if editingID == "" {
		return s.Create(d)
	}
	return s.Update(editingID, PatchFromDraft(d))
}

// Delete removes the segment with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	return nil
}

// Get returns a copy of the segment with the given id.
func (s *Store) Get(id string) (Segment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return Segment{}, false
	}
	return s.items[idx].Clone(), true
}

// List returns copies of all segments in creation order.
func (s *Store) List() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Segment, len(s.items))
	for i, seg := range s.items {
		out[i] = seg.Clone()
	}
	return out
}

// Len returns the number of stored segments.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Replace swaps the store contents for list, used when restoring a recorded
// job. Every segment is validated first; on failure nothing changes.
func (s *Store) Replace(list []Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(list))
	fields := map[string]string{}
	for i, seg := range list {
		if _, dup := seen[seg.ID]; dup || seg.ID == "" {
			fields[fmt.Sprintf("%s[%d].id", FieldSegments, i)] = "Segment id must be present and unique"
		}
		seen[seg.ID] = struct{}{}
		for key, msg := range ValidateSegment(seg, s.duration) {
			fields[fmt.Sprintf("%s[%d].%s", FieldSegments, i, key)] = msg
		}
	}
	if len(fields) > 0 {
		return validationError("invalid analysis segments", fields)
	}
	items := make([]Segment, len(list))
	for i, seg := range list {
		items[i] = seg.Clone()
	}
	s.items = items
	return nil
}

// Clear removes every segment.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}

// Options reports which analyses the stored segments request.
func (s *Store) Options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return OptionsFor(s.items)
}

func (s *Store) indexLocked(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
