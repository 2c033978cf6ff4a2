package statfile

import "encoding/binary"

// upgradeLegacyHeader upgrades a v1.0 header to v1.2 in place.
//
// This is the "Legacy migrator" external collaborator referenced in
// spec.md §6.2, invoked only from validate(). The v1.0 and v1.2 layouts
// share identical field offsets in the retained source (no field was added
// between those versions), so the upgrade rewrites the two version bytes
// and zeroes the three padding bytes rather than migrating fields; the
// reserved run is left as it is.
//
// A genuine v1.0 header also never wrote total_blocks: the original reader
// (statfile_get_total_blocks) treats total_blocks == 0 as the signature of
// a legacy header and backfills it from the common section's length.
// upgradeLegacyHeader does the same here, since a zero total_blocks would
// otherwise survive the version bump and make every capacity check against
// the upgraded file read zero forever.
//
// Callers must hold whatever lock excludes concurrent writers to this
// mapping; openHandle calls validate() while holding the advisory file lock
// (see handle.go), before any Handle exists.
func upgradeLegacyHeader(data []byte) {
	data[offVersion] = currentVersion[0]
	data[offVersion+1] = currentVersion[1]

	for i := offPadding; i < offPadding+3; i++ {
		data[i] = 0
	}

	if binary.LittleEndian.Uint64(data[offTotalBlocks:]) == 0 {
		if nblocks, err := sectionBlockCount(data, headerSize); err == nil {
			binary.LittleEndian.PutUint64(data[offTotalBlocks:], nblocks)
		}
	}
}
