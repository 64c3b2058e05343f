package manifest

import (
	"fmt"
	"path"
	"strings"
)

// MaxArchiveCount bounds the archive identifier space. A tag whose value
// falls outside it means the manifest is not one we understand.
const MaxArchiveCount = 32

// PackageProject is the origin path segment the game client's release
// packages live under.
const PackageProject = "/projects/lol_game_client/releases/"

// FileEntry describes one logical game file listed in the package manifest.
// Immutable once parsed.
type FileEntry struct {
	RemoteLink string // fully-qualified source URL
	LocalName  string // destination path, still carrying the compression suffix
	ArchiveID  uint32 // archive blob holding this file's bytes
	Offset     int64  // byte offset within the archive
	Size       int64  // compressed byte count within the archive
	Aux        int64  // carried through unchanged, meaning unknown
}

// FinalName is the destination path after decompression: LocalName with its
// last dot-delimited suffix removed.
func (f *FileEntry) FinalName() string {
	ext := path.Ext(f.LocalName)
	return strings.TrimSuffix(f.LocalName, ext)
}

// ArchiveEntry describes one downloadable archive blob shared by many files.
type ArchiveEntry struct {
	ID         uint32
	RemoteLink string
	LocalName  string
	RemoteSize int64
	FileCount  int // number of manifest entries referencing this archive
}

// ArchiveName renders the canonical on-disk and on-origin name for an
// archive identifier.
func ArchiveName(id uint32) string {
	return fmt.Sprintf("BIN_0x%08x", id)
}

// Stats aggregates what one parse pass observed. Reporting material plus a
// coarse consistency signal; never gates correctness.
type Stats struct {
	FileCount         int
	ArchiveCount      int
	TotalFileBytes    int64
	TotalArchiveBytes int64
	MaxLineLength     int
}

// Manifest is the parsed, indexed package manifest. Read-only once built.
type Manifest struct {
	Files   []*FileEntry // manifest line order, externally observable
	Present [MaxArchiveCount]bool
	Stats   Stats
}

// Source describes the content origin and local destination for one run.
type Source struct {
	BaseURL  string // origin, scheme included
	BasePath string
	Version  string
	DestDir  string
}

// RawURL resolves a manifest-relative path segment against the origin.
func (s Source) RawURL(p string) string {
	return s.BaseURL + s.BasePath + p
}

// PackageFileURL resolves a release package file (the manifest itself or an
// archive blob) against the origin's versioned package tree.
func (s Source) PackageFileURL(name string) string {
	return s.BaseURL + s.BasePath + PackageProject + s.Version + "/packages/files/" + name
}
