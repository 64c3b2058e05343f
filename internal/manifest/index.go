package manifest

import (
	"context"
	"fmt"
)

// SizeProber reports the remote size of a resource. Satisfied by the fetch
// client's HEAD probe.
type SizeProber interface {
	RemoteSize(ctx context.Context, url string) (int64, error)
}

// BuildIndex synthesizes one ArchiveEntry per archive identifier the
// manifest references, in ascending id order, probing each archive's remote
// size. The summed remote sizes are recorded in the manifest statistics;
// comparing them against the file-size sum is left to the caller, since a
// disagreement is only a warning.
func BuildIndex(ctx context.Context, prober SizeProber, m *Manifest, src Source) ([]*ArchiveEntry, error) {
	perArchive := make(map[uint32]int)
	for _, f := range m.Files {
		perArchive[f.ArchiveID]++
	}

	var archives []*ArchiveEntry
	for id := uint32(0); id < MaxArchiveCount; id++ {
		if !m.Present[id] {
			continue
		}
		name := ArchiveName(id)
		entry := &ArchiveEntry{
			ID:         id,
			RemoteLink: src.PackageFileURL(name),
			LocalName:  src.DestDir + "/" + name,
			FileCount:  perArchive[id],
		}
		size, err := prober.RemoteSize(ctx, entry.RemoteLink)
		if err != nil {
			return nil, fmt.Errorf("manifest: probe %s: %w", name, err)
		}
		entry.RemoteSize = size
		m.Stats.TotalArchiveBytes += size
		archives = append(archives, entry)
	}
	return archives, nil
}
