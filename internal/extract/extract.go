package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/klauspost/compress/zlib"
	"github.com/spf13/afero"

	"github.com/quopp/radsdl/internal/manifest"
)

// ErrArchiveMissing means the archive blob a file's bytes live in is not on
// disk. Nothing else from that archive can be extracted either, so callers
// treat it as fatal rather than a per-file failure.
var ErrArchiveMissing = errors.New("extract: archive not found")

// Extractor turns archive-relative byte ranges into standalone decompressed
// files.
type Extractor struct {
	fsys afero.Fs
}

// New returns an extractor operating on fsys.
func New(fsys afero.Fs) *Extractor {
	return &Extractor{fsys: fsys}
}

// FromArchive copies entry's byte range out of the archive at archivePath
// into an intermediate compressed file, decompresses it to the final name,
// and removes the intermediate. The archive must be fully downloaded; a
// short read means it is truncated or corrupt.
func (e *Extractor) FromArchive(entry *manifest.FileEntry, archivePath string) error {
	archive, err := e.fsys.Open(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrArchiveMissing, archivePath)
		}
		return fmt.Errorf("extract: open archive %s: %w", archivePath, err)
	}
	defer archive.Close()

	if _, err := archive.Seek(entry.Offset, io.SeekStart); err != nil {
		return fmt.Errorf("extract: seek %s to %d: %w", archivePath, entry.Offset, err)
	}

	if err := e.writeIntermediate(entry, archive); err != nil {
		return err
	}

	if err := e.Decompress(entry.LocalName, entry.FinalName()); err != nil {
		e.fsys.Remove(entry.FinalName())
		return err
	}
	if err := e.fsys.Remove(entry.LocalName); err != nil {
		return fmt.Errorf("extract: remove intermediate %s: %w", entry.LocalName, err)
	}
	return nil
}

func (e *Extractor) writeIntermediate(entry *manifest.FileEntry, archive io.Reader) error {
	if dir := path.Dir(entry.LocalName); dir != "." {
		if err := e.fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("extract: mkdir %s: %w", dir, err)
		}
	}

	out, err := e.fsys.Create(entry.LocalName)
	if err != nil {
		return fmt.Errorf("extract: create %s: %w", entry.LocalName, err)
	}

	_, err = io.CopyN(out, archive, entry.Size)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		e.fsys.Remove(entry.LocalName)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("extract: short read for %s: archive truncated at offset %d",
				entry.LocalName, entry.Offset)
		}
		return fmt.Errorf("extract: copy %s: %w", entry.LocalName, err)
	}
	return nil
}

// Decompress inflates the file at src into dst. src is left in place.
func (e *Extractor) Decompress(src, dst string) error {
	in, err := e.fsys.Open(src)
	if err != nil {
		return fmt.Errorf("extract: open %s: %w", src, err)
	}
	defer in.Close()

	zr, err := zlib.NewReader(in)
	if err != nil {
		return fmt.Errorf("extract: %s is not zlib data: %w", src, err)
	}
	defer zr.Close()

	if dir := path.Dir(dst); dir != "." {
		if err := e.fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("extract: mkdir %s: %w", dir, err)
		}
	}
	out, err := e.fsys.Create(dst)
	if err != nil {
		return fmt.Errorf("extract: create %s: %w", dst, err)
	}

	_, err = io.Copy(out, zr)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		e.fsys.Remove(dst)
		return fmt.Errorf("extract: inflate %s: %w", src, err)
	}
	return nil
}
