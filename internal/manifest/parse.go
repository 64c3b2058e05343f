package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// header is the literal first line of every supported package manifest.
// The remainder of the format is version-dependent, so anything else is
// unrecoverable.
const header = "PKG1"

// fileMarker separates the origin's project prefix from the
// destination-relative path inside a manifest path segment.
const fileMarker = "files/"

const archiveTagPrefix = "BIN_0x"

var (
	ErrBadHeader     = errors.New("manifest: bad header")
	ErrDuplicatePath = errors.New("manifest: duplicate destination path")
)

// Parse decodes the manifest text into an ordered, validated file set.
// Any malformed line aborts the parse; a partially processed manifest is
// never returned.
func Parse(r io.Reader, src Source) (*Manifest, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("manifest: read header: %w", err)
		}
		return nil, fmt.Errorf("%w: empty manifest", ErrBadHeader)
	}
	if got := strings.TrimRight(sc.Text(), "\r"); got != header {
		return nil, fmt.Errorf("%w: %q", ErrBadHeader, got)
	}

	m := &Manifest{}
	seen := make(map[string]int)

	lineNo := 1
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		if len(line) > m.Stats.MaxLineLength {
			m.Stats.MaxLineLength = len(line)
		}

		entry, err := parseLine(line, src)
		if err != nil {
			return nil, fmt.Errorf("manifest: line %d: %w", lineNo, err)
		}

		if prev, ok := seen[entry.LocalName]; ok {
			return nil, fmt.Errorf("%w: %s on lines %d and %d",
				ErrDuplicatePath, entry.LocalName, prev, lineNo)
		}
		seen[entry.LocalName] = lineNo

		m.Files = append(m.Files, entry)
		m.Present[entry.ArchiveID] = true
		m.Stats.FileCount++
		m.Stats.TotalFileBytes += entry.Size
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("manifest: read: %w", err)
	}

	for _, present := range m.Present {
		if present {
			m.Stats.ArchiveCount++
		}
	}
	return m, nil
}

func parseLine(line string, src Source) (*FileEntry, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return nil, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	rawPath := fields[0]
	marker := strings.Index(rawPath, fileMarker)
	if marker < 0 {
		return nil, fmt.Errorf("path %q lacks %q marker", rawPath, fileMarker)
	}
	// The destination-relative part starts at the slash ending the marker.
	rel := rawPath[marker+len(fileMarker)-1:]

	id, err := parseArchiveTag(fields[1])
	if err != nil {
		return nil, err
	}

	offset, err := parseNonNegative("offset", fields[2])
	if err != nil {
		return nil, err
	}
	size, err := parseNonNegative("size", fields[3])
	if err != nil {
		return nil, err
	}
	aux, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid auxiliary field %q", fields[4])
	}

	return &FileEntry{
		RemoteLink: src.RawURL(rawPath),
		LocalName:  src.DestDir + rel,
		ArchiveID:  id,
		Offset:     offset,
		Size:       size,
		Aux:        aux,
	}, nil
}

func parseArchiveTag(tag string) (uint32, error) {
	if !strings.HasPrefix(tag, archiveTagPrefix) {
		return 0, fmt.Errorf("invalid archive tag %q", tag)
	}
	id, err := strconv.ParseUint(tag[len(archiveTagPrefix):], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid archive tag %q", tag)
	}
	if id >= MaxArchiveCount {
		return 0, fmt.Errorf("archive id 0x%x out of range (max %d)", id, MaxArchiveCount-1)
	}
	return uint32(id), nil
}

func parseNonNegative(name, s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return v, nil
}
