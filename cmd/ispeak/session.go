package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"ispeak/internal/manifest"
	"ispeak/internal/segments"
	"ispeak/internal/timeline"
)

// session is a manifest marked onto the timeline and committed to a segment
// store, ready to submit.
type session struct {
	manifest *manifest.Manifest
	duration float64
	store    *segments.Store
	layer    *timeline.MemoryLayer
	report   timeline.SyncReport
}

// rangeAdjustment moves one manifest segment, numbered from 1, to a new range.
type rangeAdjustment struct {
	index int
	rng   segments.TimeRange
}

// parseAdjustments reads --adjust values of the form N=START-END, in seconds.
func parseAdjustments(values []string) ([]rangeAdjustment, error) {
	out := make([]rangeAdjustment, 0, len(values))
	for _, value := range values {
		num, bounds, ok := strings.Cut(strings.TrimSpace(value), "=")
		if !ok {
			return nil, fmt.Errorf("adjust %q: want N=START-END", value)
		}
		index, err := strconv.Atoi(strings.TrimSpace(num))
		if err != nil || index < 1 {
			return nil, fmt.Errorf("adjust %q: segment number must be a positive integer", value)
		}
		startText, endText, ok := strings.Cut(bounds, "-")
		if !ok {
			return nil, fmt.Errorf("adjust %q: want N=START-END", value)
		}
		start, err := strconv.ParseFloat(strings.TrimSpace(startText), 64)
		if err != nil {
			return nil, fmt.Errorf("adjust %q: start: %w", value, err)
		}
		end, err := strconv.ParseFloat(strings.TrimSpace(endText), 64)
		if err != nil {
			return nil, fmt.Errorf("adjust %q: end: %w", value, err)
		}
		out = append(out, rangeAdjustment{index: index, rng: segments.TimeRange{Start: start, End: end}})
	}
	return out, nil
}

// loadSession reads the manifest and commits each range the same way an
// interactive selection would: start a selection, commit it with its labels,
// apply it to the store, then mirror the store onto fixed regions.
// Adjustments re-open a committed segment for editing and move its range.
func loadSession(path string, adjustments []rangeAdjustment, logger *slog.Logger) (*session, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	duration, err := m.ResolveDuration()
	if err != nil {
		return nil, err
	}

	store := segments.NewStore(duration)
	layer := timeline.NewMemoryLayer()
	selection := timeline.NewSelectionController(layer, duration, logger)

	ids := make([]string, 0, len(m.Ranges))
	for i, r := range m.Ranges {
		if _, err := selection.Start(r.TimeRange()); err != nil {
			return nil, fmt.Errorf("segment %d: %w", i+1, err)
		}
		seg, err := commitSelection(selection, store, r.CommitMeta())
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i+1, err)
		}
		ids = append(ids, seg.ID)
	}

	for _, adj := range adjustments {
		if adj.index > len(ids) {
			return nil, fmt.Errorf("adjust segment %d: manifest defines %d segment(s)", adj.index, len(ids))
		}
		seg, ok := store.Get(ids[adj.index-1])
		if !ok {
			return nil, fmt.Errorf("adjust segment %d: %w", adj.index, segments.ErrNotFound)
		}
		if _, err := selection.Edit(seg); err != nil {
			return nil, fmt.Errorf("adjust segment %d: %w", adj.index, err)
		}
		if _, err := selection.Update(adj.rng); err != nil {
			selection.Cancel()
			return nil, fmt.Errorf("adjust segment %d: %w", adj.index, err)
		}
		if _, err := commitSelection(selection, store, timeline.CommitMetaFor(seg)); err != nil {
			return nil, fmt.Errorf("adjust segment %d: %w", adj.index, err)
		}
	}

	report, err := timeline.NewSynchronizer(layer, logger).Sync(store.List())
	if err != nil {
		return nil, fmt.Errorf("sync regions: %w", err)
	}

	return &session{
		manifest: m,
		duration: duration,
		store:    store,
		layer:    layer,
		report:   report,
	}, nil
}

// commitSelection commits the live selection and applies it to the store as
// a new segment or an edit of the segment being edited.
func commitSelection(selection *timeline.SelectionController, store *segments.Store, meta timeline.CommitMeta) (segments.Segment, error) {
	draft, editingID, err := selection.Commit(meta)
	if err != nil {
		selection.Cancel()
		return segments.Segment{}, err
	}
	return store.Apply(draft, editingID)
}
