package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/apex/log"
	"github.com/spf13/afero"

	"github.com/quopp/radsdl/internal/config"
	"github.com/quopp/radsdl/internal/extract"
	"github.com/quopp/radsdl/internal/fetch"
	"github.com/quopp/radsdl/internal/manifest"
	"github.com/quopp/radsdl/internal/progress"
)

const manifestName = "packagemanifest"

func run(ctx context.Context, opts config.Options, out io.Writer) int {
	return runWith(ctx, opts, afero.NewOsFs(), fetch.NewClient(fetch.DefaultOptions()), out)
}

// runWith processes exactly one manifest to completion or aborts. The
// filesystem and HTTP client come from the caller so tests can substitute
// an in-memory filesystem and a local origin.
func runWith(ctx context.Context, opts config.Options, fsys afero.Fs, client *fetch.Client, out io.Writer) int {
	printOptions(out, opts)
	src := opts.Source()

	if err := fsys.MkdirAll(opts.DestDir, 0755); err != nil {
		log.Errorf("create destination folder: %v", err)
		return 1
	}

	xfer := fetch.NewManager(fsys, client, out)
	manifestPath := opts.DestDir + "/" + manifestName
	if _, err := xfer.Fetch(ctx, fetch.Request{
		URL:            src.PackageFileURL(manifestName),
		Dest:           manifestPath,
		RemoveExisting: opts.RemoveExisting,
	}); err != nil {
		log.Errorf("fetch %s: %v", manifestName, err)
		return 1
	}

	data, err := afero.ReadFile(fsys, manifestPath)
	if err != nil {
		log.Errorf("read %s: %v", manifestName, err)
		return 1
	}
	if changed, err := manifest.CheckFingerprint(fsys, manifestPath, data); err != nil {
		log.Warnf("%v", err)
	} else if changed {
		log.Warnf("%s changed since the last run; partially downloaded archives may no longer match it", manifestName)
	}

	m, err := manifest.Parse(bytes.NewReader(data), src)
	if err != nil {
		log.Errorf("bad %s: %v", manifestName, err)
		return 1
	}

	archives, err := manifest.BuildIndex(ctx, client, m, src)
	if err != nil {
		log.Errorf("%v", err)
		return 1
	}
	if m.Stats.TotalArchiveBytes != m.Stats.TotalFileBytes {
		log.Warnf("total sizes don't match: files claim %d B, archives serve %d B",
			m.Stats.TotalFileBytes, m.Stats.TotalArchiveBytes)
	}
	printStats(out, m.Stats)

	if !opts.Individual {
		if err := downloadArchives(ctx, opts, xfer, archives, out); err != nil {
			log.Errorf("download archives: %v", err)
			return 1
		}
	}

	failed := processFiles(ctx, opts, fsys, xfer, m, archives, out)
	if ctx.Err() != nil {
		log.Warnf("canceled; partial files were kept and can be resumed")
		return 1
	}
	if failed > 0 {
		log.Errorf("%d file(s) could not be processed", failed)
		return 1
	}
	return 0
}

// downloadArchives brings every referenced archive blob up to date, at most
// opts.Jobs at a time. Per-transfer progress bars only make sense when a
// single transfer runs at a time.
func downloadArchives(ctx context.Context, opts config.Options, xfer *fetch.Manager, archives []*manifest.ArchiveEntry, out io.Writer) error {
	fmt.Fprintln(out, "Downloading BIN archives...")

	quiet := opts.Jobs > 1
	sem := make(chan struct{}, opts.Jobs)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, a := range archives {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, a *manifest.ArchiveEntry) {
			defer func() {
				<-sem
				wg.Done()
			}()

			fmt.Fprintf(out, "Downloading: %s (%d/%d)\n", a.LocalName, i+1, len(archives))
			_, err := xfer.Fetch(ctx, fetch.Request{
				URL:            a.RemoteLink,
				Dest:           a.LocalName,
				RemoveExisting: opts.RemoveExisting,
				Quiet:          quiet,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", manifest.ArchiveName(a.ID), err)
				}
				mu.Unlock()
			}
		}(i, a)
	}

	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// processFiles walks the file set in manifest order, extracting from
// archives or fetching individually. Failures on single files are counted
// and logged but do not stop the pass; a missing archive does, since every
// file in it would fail the same way.
func processFiles(ctx context.Context, opts config.Options, fsys afero.Fs, xfer *fetch.Manager, m *manifest.Manifest, archives []*manifest.ArchiveEntry, out io.Writer) int {
	verb := "Extracting"
	if opts.Individual {
		verb = "Downloading"
	}
	fmt.Fprintf(out, "%s game files...\n", verb)

	// An archive may only be cleaned up once every file referencing it has
	// been extracted.
	byID := make(map[uint32]*manifest.ArchiveEntry, len(archives))
	pending := make(map[uint32]*atomic.Int32, len(archives))
	for _, a := range archives {
		byID[a.ID] = a
		c := new(atomic.Int32)
		c.Store(int32(a.FileCount))
		pending[a.ID] = c
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ext := extract.New(fsys)
	sem := make(chan struct{}, opts.Jobs)
	var wg sync.WaitGroup
	var failed, done atomic.Int32
	var outMu sync.Mutex
	total := len(m.Files)

	for _, f := range m.Files {
		select {
		case <-ctx.Done():
			wg.Wait()
			return int(failed.Load())
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(f *manifest.FileEntry) {
			defer func() {
				<-sem
				wg.Done()
			}()

			var err error
			if opts.Individual {
				err = fetchIndividual(ctx, opts, fsys, xfer, ext, f)
			} else {
				a := byID[f.ArchiveID]
				err = ext.FromArchive(f, a.LocalName)
				if err == nil && pending[f.ArchiveID].Add(-1) == 0 && !opts.KeepArchives {
					if rmErr := fsys.Remove(a.LocalName); rmErr != nil {
						log.Warnf("remove %s: %v", a.LocalName, rmErr)
					}
				}
			}

			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
			case errors.Is(err, extract.ErrArchiveMissing):
				log.Errorf("%v", err)
				failed.Add(1)
				cancel()
			default:
				log.Errorf("%v", err)
				failed.Add(1)
			}

			n := int(done.Add(1))
			outMu.Lock()
			frac := float64(n) / float64(total)
			fmt.Fprintf(out, "\r%3d%% %s (%d/%d)", int(frac*100), progress.Bar(frac, progress.Columns()/4), n, total)
			outMu.Unlock()
		}(f)
	}

	wg.Wait()
	fmt.Fprintln(out)
	return int(failed.Load())
}

// fetchIndividual downloads one compressed file and decompresses it in
// place, without going through an archive. Progress output is suppressed
// since thousands of small transfers would flood the console.
func fetchIndividual(ctx context.Context, opts config.Options, fsys afero.Fs, xfer *fetch.Manager, ext *extract.Extractor, f *manifest.FileEntry) error {
	final := f.FinalName()
	if _, err := fsys.Stat(final); err == nil {
		if !opts.RemoveExisting {
			return nil
		}
		if err := fsys.Remove(final); err != nil {
			return fmt.Errorf("remove %s: %w", final, err)
		}
	}

	if _, err := xfer.Fetch(ctx, fetch.Request{URL: f.RemoteLink, Dest: f.LocalName, Quiet: true}); err != nil {
		return fmt.Errorf("fetch %s: %w", f.LocalName, err)
	}
	if err := ext.Decompress(f.LocalName, final); err != nil {
		return err
	}
	return fsys.Remove(f.LocalName)
}

func printOptions(out io.Writer, opts config.Options) {
	fmt.Fprintln(out, "Options are:")
	fmt.Fprintf(out, "\tURL: %s\n", opts.BaseURL)
	fmt.Fprintf(out, "\tPath: %s\n", opts.BasePath)
	fmt.Fprintf(out, "\tVersion: %s\n", opts.Version)
	fmt.Fprintf(out, "\tDestination folder: %s\n", opts.DestDir)
	fmt.Fprintf(out, "\tUse BIN archives: %s\n", yesNo(!opts.Individual))
	fmt.Fprintf(out, "\tRemove existing files: %s\n", yesNo(opts.RemoveExisting))
	fmt.Fprintf(out, "\tKeep BIN archives: %s\n", yesNo(opts.KeepArchives))
	fmt.Fprintf(out, "\tJobs: %d\n", opts.Jobs)
}

func printStats(out io.Writer, s manifest.Stats) {
	fmt.Fprintln(out, "Stats:")
	fmt.Fprintf(out, "  Total size (sum of individual files' sizes): %s\n", progress.FormatSize(s.TotalFileBytes))
	fmt.Fprintf(out, "  Total size (sum of archive files' sizes):    %s\n", progress.FormatSize(s.TotalArchiveBytes))
	fmt.Fprintf(out, "  Max line length: %d\n", s.MaxLineLength)
	fmt.Fprintf(out, "  File count: %d\n", s.FileCount)
	fmt.Fprintf(out, "  BIN archive count: %d\n", s.ArchiveCount)
}

func yesNo(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}
