package timeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"ispeak/internal/logging"
	"ispeak/internal/segments"
	"ispeak/internal/services"
)

// ErrNoSelection is returned when an operation needs a live selection.
var ErrNoSelection = errors.New("no range selected")

// Selection is the in-progress range and the region that displays it.
type Selection struct {
	RegionID string
	Range    segments.TimeRange
}

// CommitMeta is the user input merged with the selected range on commit.
type CommitMeta struct {
	Name          string
	Type          segments.Type
	ReferenceKind segments.ReferenceKind
	ReferenceText string
}

// CommitMetaFor returns the labels of an existing segment, so an edit that
// only moves the range can commit them unchanged.
func CommitMetaFor(seg segments.Segment) CommitMeta {
	d := seg.Draft()
	return CommitMeta{
		Name:          d.Name,
		Type:          d.Type,
		ReferenceKind: d.ReferenceKind,
		ReferenceText: d.ReferenceText,
	}
}

// SelectionController manages the single live selection region.
type SelectionController struct {
	mu        sync.Mutex
	layer     RegionLayer
	duration  float64
	current   *Selection
	editingID string
	newToken  func() string
	logger    *slog.Logger
}

// NewSelectionController creates a controller validating ranges against a
// recording of the given duration in seconds.
func NewSelectionController(layer RegionLayer, duration float64, logger *slog.Logger) *SelectionController {
	return &SelectionController{
		layer:    layer,
		duration: duration,
		newToken: uuid.NewString,
		logger:   logging.NewComponentLogger(logger, "selection"),
	}
}

// SetDuration changes the duration used for range validation.
func (c *SelectionController) SetDuration(duration float64) {
	c.mu.Lock()
	c.duration = duration
	c.mu.Unlock()
}

// Start begins a new selection. Any other selection region is removed before
// the new one is added. An invalid range leaves state untouched.
func (c *SelectionController) Start(r segments.TimeRange) (Selection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.validateLocked(r); err != nil {
		return Selection{}, err
	}
	sel, err := c.startLocked(r)
	if err != nil {
		return Selection{}, err
	}
	c.editingID = ""
	return sel, nil
}

// Edit begins editing an existing segment: its range becomes the live
// selection and Commit reports the segment id.
func (c *SelectionController) Edit(seg segments.Segment) (Selection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.validateLocked(seg.TimeRange); err != nil {
		return Selection{}, err
	}
	sel, err := c.startLocked(seg.TimeRange)
	if err != nil {
		return Selection{}, err
	}
	c.editingID = seg.ID
	return sel, nil
}

// Update moves the live selection, resizing its region in place or
// recreating it if the layer lost it.
func (c *SelectionController) Update(r segments.TimeRange) (Selection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Selection{}, ErrNoSelection
	}
	if err := c.validateLocked(r); err != nil {
		return Selection{}, err
	}
	sel := Selection{RegionID: c.current.RegionID, Range: r}
	if c.layer != nil && c.layer.Ready() {
		if hasRegion(c.layer.Regions(), sel.RegionID) {
			if err := c.layer.UpdateRegion(sel.RegionID, r.Start, r.End); err != nil {
				return Selection{}, fmt.Errorf("resize selection: %w", err)
			}
		} else if err := c.placeLocked(sel); err != nil {
			return Selection{}, err
		}
	}
	c.current = &sel
	return sel, nil
}

// Current returns the live selection, if any.
func (c *SelectionController) Current() (Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Selection{}, false
	}
	return *c.current, true
}

// EditingID returns the id of the segment being edited, or "".
func (c *SelectionController) EditingID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editingID
}

// Commit merges the live range with meta into a draft. The returned id is
// the segment being edited, or "" for a new segment. On success the
// selection is cleared; on validation failure it is kept so the user can
// correct the input.
func (c *SelectionController) Commit(meta CommitMeta) (segments.Draft, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return segments.Draft{}, "", services.Validation("no range selected", map[string]string{
			segments.FieldTimeRange: "Select a range on the waveform first",
		})
	}
	draft := segments.Draft{
		Name:          meta.Name,
		Type:          meta.Type,
		TimeRange:     c.current.Range,
		ReferenceKind: meta.ReferenceKind,
		ReferenceText: meta.ReferenceText,
	}
	check := draft
	if check.Name == "" {
		check.Name = segments.BaseName(check.Type)
	}
	if err := segments.ValidateDraft(check, c.duration); err != nil {
		return segments.Draft{}, "", err
	}
	editing := c.editingID
	c.clearLocked()
	return draft, editing, nil
}

// Cancel removes the selection region and clears the selection.
func (c *SelectionController) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *SelectionController) validateLocked(r segments.TimeRange) error {
	if msg := segments.ValidateTimeRange(r, c.duration); msg != "" {
		return services.Validation(msg, map[string]string{segments.FieldTimeRange: msg})
	}
	return nil
}

func (c *SelectionController) startLocked(r segments.TimeRange) (Selection, error) {
	sel := Selection{RegionID: SelectionPrefix + c.newToken(), Range: r}
	if c.layer != nil && c.layer.Ready() {
		if err := c.placeLocked(sel); err != nil {
			return Selection{}, err
		}
	}
	c.current = &sel
	return sel, nil
}

// placeLocked removes every other selection region, then adds sel's region.
func (c *SelectionController) placeLocked(sel Selection) error {
	for _, region := range c.layer.Regions() {
		if !IsSelection(region.ID) || region.ID == sel.RegionID {
			continue
		}
		if err := c.layer.RemoveRegion(region.ID); err != nil && !errors.Is(err, ErrRegionNotFound) {
			return fmt.Errorf("remove stale selection %s: %w", region.ID, err)
		}
	}
	if hasRegion(c.layer.Regions(), sel.RegionID) {
		return c.layer.UpdateRegion(sel.RegionID, sel.Range.Start, sel.Range.End)
	}
	if err := c.layer.AddRegion(Region{
		ID:        sel.RegionID,
		Start:     sel.Range.Start,
		End:       sel.Range.End,
		Color:     ColorSelection,
		Draggable: true,
		Resizable: true,
	}); err != nil {
		return fmt.Errorf("add selection: %w", err)
	}
	return nil
}

func (c *SelectionController) clearLocked() {
	if c.current != nil && c.layer != nil && c.layer.Ready() {
		if err := c.layer.RemoveRegion(c.current.RegionID); err != nil && !errors.Is(err, ErrRegionNotFound) {
			logging.WarnWithContext(c.logger, "selection region removal failed", "selection_remove_failed",
				logging.String("region_id", c.current.RegionID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "a stale selection region may stay visible until the next selection"),
			)
		}
	}
	c.current = nil
	c.editingID = ""
}

func hasRegion(regions []Region, id string) bool {
	for _, region := range regions {
		if region.ID == id {
			return true
		}
	}
	return false
}
