package extractor

// dryRunState simulates destination occupancy during a dry run. A dry
// run never writes, so collisions created by the run itself (two
// candidates sharing a name, or sharing content under global dedup) are
// invisible on disk; this layer stands in for the files a real run would
// have placed, keeping the preview's classification identical to the
// real run's.
//
// Shared fingerprint indexes are never mutated during a dry run: the
// index invariant is that an entry exists only once its move has durably
// landed. Simulated entries live in the overlay here instead.
type dryRunState struct {
	// planned maps a destination name to the source file whose content
	// would hold it. The source still exists on disk, so it can be
	// fingerprinted for same-name comparisons.
	planned map[string]string

	// index overlays fingerprint -> planned destination path entries on
	// top of the real dedup index.
	index map[string]string
}

func newDryRunState() *dryRunState {
	return &dryRunState{
		planned: make(map[string]string),
		index:   make(map[string]string),
	}
}

// occupantSource returns the source file whose content would occupy the
// given destination name, if one was planned.
func (d *dryRunState) occupantSource(name string) (string, bool) {
	src, ok := d.planned[name]
	return src, ok
}

// plan records that src's content would land at the destination name.
func (d *dryRunState) plan(name, src string) {
	d.planned[name] = src
}

// plannedNames returns the destination names handed out so far, for
// collision-free name resolution.
func (d *dryRunState) plannedNames() map[string]bool {
	names := make(map[string]bool, len(d.planned))
	for name := range d.planned {
		names[name] = true
	}
	return names
}
