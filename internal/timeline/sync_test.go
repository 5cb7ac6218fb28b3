package timeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ispeak/internal/logging"
	"ispeak/internal/segments"
	"ispeak/internal/timeline"
)

func sampleSegments() []segments.Segment {
	return []segments.Segment{
		{ID: "a", Name: "Acoustic Analysis", Type: segments.TypeAcoustic, TimeRange: segments.TimeRange{Start: 0, End: 4}},
		{ID: "b", Name: "Words", Type: segments.TypeIntelligibility, TimeRange: segments.TimeRange{Start: 5, End: 9},
			ReferenceData: &segments.ReferenceData{Words: []string{"leaf"}}},
	}
}

func TestSyncCreatesFixedRegions(t *testing.T) {
	layer := timeline.NewMemoryLayer()
	sync := timeline.NewSynchronizer(layer, logging.NewNop())

	report, err := sync.Sync(sampleSegments())
	require.NoError(t, err)
	assert.Equal(t, []string{"fix-region-a", "fix-region-b"}, report.Created)
	assert.Empty(t, report.Removed)

	regions := layer.Regions()
	require.Len(t, regions, 2)
	assert.Equal(t, timeline.Region{
		ID:    "fix-region-a",
		Start: 0,
		End:   4,
		Label: "Acoustic Analysis",
		Color: "rgba(168, 85, 247, 0.2)",
	}, regions[0])
	assert.Equal(t, "rgba(34, 197, 94, 0.2)", regions[1].Color)
	assert.False(t, regions[1].Draggable)
	assert.False(t, regions[1].Resizable)
}

func TestSyncIsIdempotent(t *testing.T) {
	layer := timeline.NewMemoryLayer()
	sync := timeline.NewSynchronizer(layer, nil)
	list := sampleSegments()

	_, err := sync.Sync(list)
	require.NoError(t, err)
	before := layer.Stats()

	report, err := sync.Sync(list)
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.Equal(t, before, layer.Stats(), "second pass must issue zero commands")
}

func TestSyncRemovesVanishedSegmentsFirst(t *testing.T) {
	layer := timeline.NewMemoryLayer()
	sync := timeline.NewSynchronizer(layer, nil)
	list := sampleSegments()
	_, err := sync.Sync(list)
	require.NoError(t, err)

	next := []segments.Segment{list[1], {ID: "c", Name: "Acoustic Analysis 2", Type: segments.TypeAcoustic,
		TimeRange: segments.TimeRange{Start: 10, End: 12}}}
	report, err := sync.Sync(next)
	require.NoError(t, err)
	assert.Equal(t, []string{"fix-region-a"}, report.Removed)
	assert.Equal(t, []string{"fix-region-c"}, report.Created)

	ids := regionIDs(layer.Regions())
	assert.ElementsMatch(t, []string{"fix-region-b", "fix-region-c"}, ids)
}

func TestSyncRefreshesEditedSegment(t *testing.T) {
	layer := timeline.NewMemoryLayer()
	sync := timeline.NewSynchronizer(layer, nil)
	list := sampleSegments()
	_, err := sync.Sync(list)
	require.NoError(t, err)

	list[0].Name = "Renamed"
	list[0].TimeRange = segments.TimeRange{Start: 1, End: 3}
	report, err := sync.Sync(list)
	require.NoError(t, err)
	assert.Equal(t, []string{"fix-region-a"}, report.Removed)
	assert.Equal(t, []string{"fix-region-a"}, report.Created)

	var found timeline.Region
	for _, region := range layer.Regions() {
		if region.ID == "fix-region-a" {
			found = region
		}
	}
	assert.Equal(t, "Renamed", found.Label)
	assert.Equal(t, 1.0, found.Start)
}

func TestSyncLeavesSelectionRegionsAlone(t *testing.T) {
	layer := timeline.NewMemoryLayer()
	require.NoError(t, layer.AddRegion(timeline.Region{ID: "region-live", Start: 1, End: 2, Draggable: true, Resizable: true}))
	sync := timeline.NewSynchronizer(layer, nil)

	_, err := sync.Sync(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"region-live"}, regionIDs(layer.Regions()))
}

func TestSyncDefersWhenLayerNotReady(t *testing.T) {
	layer := timeline.NewMemoryLayer()
	layer.SetReady(false)
	sync := timeline.NewSynchronizer(layer, nil)

	report, err := sync.Sync(sampleSegments())
	require.NoError(t, err)
	assert.True(t, report.Deferred)
	assert.Zero(t, layer.Stats().Total())

	layer.SetReady(true)
	report, err = sync.Sync(sampleSegments())
	require.NoError(t, err)
	assert.False(t, report.Deferred)
	assert.Len(t, report.Created, 2)
}

func TestColorFallback(t *testing.T) {
	assert.Equal(t, timeline.ColorFallback, timeline.ColorFor("other"))
}

func regionIDs(regions []timeline.Region) []string {
	ids := make([]string, 0, len(regions))
	for _, region := range regions {
		ids = append(ids, region.ID)
	}
	return ids
}
