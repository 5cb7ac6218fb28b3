// Package timeline keeps the visual region layer of a recording consistent
// with the committed segments and the single in-progress selection.
//
// The region layer is a capability (RegionLayer) so a real waveform renderer
// or the in-memory MemoryLayer can back it. Synchronizer owns fixed regions
// ("fix-region-<segment id>"); SelectionController owns the one live
// selection region ("region-<token>"). Neither touches the other's regions.
package timeline
