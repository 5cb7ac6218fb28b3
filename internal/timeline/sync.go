package timeline

import (
	"fmt"
	"log/slog"
	"strings"

	"ispeak/internal/logging"
	"ispeak/internal/segments"
)

// SyncReport lists the region commands one Sync pass issued.
type SyncReport struct {
	Created  []string
	Removed  []string
	Deferred bool
}

// Changed reports whether the pass issued any command.
func (r SyncReport) Changed() bool {
	return len(r.Created) > 0 || len(r.Removed) > 0
}

// Synchronizer reconciles fixed regions with the committed segment list.
type Synchronizer struct {
	layer  RegionLayer
	logger *slog.Logger
}

// NewSynchronizer binds a synchronizer to a region layer.
func NewSynchronizer(layer RegionLayer, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{layer: layer, logger: logging.NewComponentLogger(logger, "timeline")}
}

// Sync removes fixed regions whose segment is gone or whose range, label or
// colour no longer match, then creates regions for segments that lack one.
// Selection regions are never touched. A layer that is not ready defers the
// pass; calling Sync again once it is ready catches up.
func (s *Synchronizer) Sync(list []segments.Segment) (SyncReport, error) {
	var report SyncReport
	if s.layer == nil || !s.layer.Ready() {
		report.Deferred = true
		s.logger.Debug("region sync deferred", logging.Int("segments", len(list)))
		return report, nil
	}

	wanted := make(map[string]Region, len(list))
	for _, seg := range list {
		spec := FixedRegionFor(seg)
		wanted[spec.ID] = spec
	}

	present := make(map[string]struct{})
	var toRemove []string
	for _, region := range s.layer.Regions() {
		if !IsFixed(region.ID) {
			continue
		}
		spec, ok := wanted[region.ID]
		if _, dup := present[region.ID]; ok && !dup && matches(region, spec) {
			present[region.ID] = struct{}{}
			continue
		}
		toRemove = append(toRemove, region.ID)
	}

	var toCreate []Region
	for _, seg := range list {
		id := FixedRegionID(seg.ID)
		if _, ok := present[id]; ok {
			continue
		}
		toCreate = append(toCreate, wanted[id])
		present[id] = struct{}{}
	}

	var failures []string
	for _, id := range toRemove {
		if err := s.layer.RemoveRegion(id); err != nil {
			failures = append(failures, err.Error())
			continue
		}
		report.Removed = append(report.Removed, id)
	}
	for _, spec := range toCreate {
		if err := s.layer.AddRegion(spec); err != nil {
			failures = append(failures, err.Error())
			continue
		}
		report.Created = append(report.Created, spec.ID)
	}

	if report.Changed() {
		s.logger.Debug("regions synchronized",
			logging.Int("created", len(report.Created)),
			logging.Int("removed", len(report.Removed)),
		)
	}
	if len(failures) > 0 {
		return report, fmt.Errorf("region sync: %s", strings.Join(failures, "; "))
	}
	return report, nil
}

func matches(region, spec Region) bool {
	return region.Start == spec.Start &&
		region.End == spec.End &&
		region.Label == spec.Label &&
		region.Color == spec.Color &&
		!region.Draggable && !region.Resizable
}
