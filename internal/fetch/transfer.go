package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/apex/log"
	"github.com/spf13/afero"

	"github.com/quopp/radsdl/internal/progress"
)

const copyBufferSize = 64 * 1024

// Outcome reports which branch of the transfer decision was taken.
type Outcome int

const (
	// Downloaded means the destination was absent and fetched in full.
	Downloaded Outcome = iota
	// Resumed means a local prefix existed and the tail was appended.
	Resumed
	// Skipped means local and remote sizes already matched.
	Skipped
	// SizeMismatch means the local file is larger than the remote one;
	// it was left untouched.
	SizeMismatch
)

// Request names one resource to bring up to date on local disk.
type Request struct {
	URL  string
	Dest string

	// RemoveExisting deletes any local copy first and refetches in full.
	RemoveExisting bool

	// Quiet suppresses the fine-grained progress line. Set for
	// individually-fetched files, where per-transfer bars would flood the
	// output.
	Quiet bool
}

// Manager applies one resumable-transfer policy to every downloadable
// resource: manifest, archive blobs, and individually-fetched files alike.
type Manager struct {
	fsys   afero.Fs
	client *Client
	out    io.Writer
}

// NewManager returns a transfer manager writing progress to out.
func NewManager(fsys afero.Fs, client *Client, out io.Writer) *Manager {
	return &Manager{fsys: fsys, client: client, out: out}
}

// Fetch brings req.Dest up to date with req.URL.
//
// Absent destinations are fetched in full. Existing ones are compared
// against a remote size probe: smaller resumes from the local byte count,
// equal skips, larger warns and leaves the file alone.
func (m *Manager) Fetch(ctx context.Context, req Request) (Outcome, error) {
	info, err := m.fsys.Stat(req.Dest)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("fetch: stat %s: %w", req.Dest, err)
	}

	if exists && req.RemoveExisting {
		if err := m.fsys.Remove(req.Dest); err != nil {
			return 0, fmt.Errorf("fetch: remove %s: %w", req.Dest, err)
		}
		exists = false
	}

	if !exists {
		return Downloaded, m.download(ctx, req, 0, 0)
	}

	local := info.Size()
	remote, err := m.client.RemoteSize(ctx, req.URL)
	if err != nil {
		return 0, fmt.Errorf("fetch: probe %s: %w", req.URL, err)
	}

	switch {
	case local < remote:
		log.Infof("Resuming download of %s", req.Dest)
		return Resumed, m.download(ctx, req, local, remote)
	case local == remote:
		log.Infof("%s already exists, skipping download", req.Dest)
		return Skipped, nil
	default:
		log.Warnf("Local %s is bigger than remote file", req.Dest)
		return SizeMismatch, nil
	}
}

// download streams the resource to disk, from byte offset already onward.
// remoteSize may be zero when unknown (fresh download); the response's
// content length fills it in.
func (m *Manager) download(ctx context.Context, req Request, already, remoteSize int64) error {
	if dir := path.Dir(req.Dest); dir != "." {
		if err := m.fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("fetch: mkdir %s: %w", dir, err)
		}
	}

	var body io.ReadCloser
	var length int64
	var err error
	if already > 0 {
		body, length, err = m.client.GetFrom(ctx, req.URL, already)
	} else {
		body, length, err = m.client.Get(ctx, req.URL)
	}
	if err != nil {
		return err
	}
	defer body.Close()

	total := remoteSize
	if total <= 0 && length > 0 {
		total = already + length
	}

	f, err := m.fsys.OpenFile(req.Dest, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("fetch: open %s: %w", req.Dest, err)
	}
	defer f.Close()
	if _, err := f.Seek(already, io.SeekStart); err != nil {
		return fmt.Errorf("fetch: seek %s: %w", req.Dest, err)
	}

	var tracker *progress.Tracker
	if !req.Quiet {
		tracker = progress.NewTracker(m.out, total, already)
		defer tracker.Finish()
	}

	buf := make([]byte, copyBufferSize)
	written := already
	for {
		select {
		case <-ctx.Done():
			// Partial file stays on disk for a later resume.
			return ctx.Err()
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return fmt.Errorf("fetch: write %s: %w", req.Dest, err)
			}
			written += int64(n)
			if tracker != nil {
				tracker.Update(written)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("fetch: read %s: %w", req.URL, readErr)
		}
	}
}
