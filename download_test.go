package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quopp/radsdl/internal/config"
	"github.com/quopp/radsdl/internal/fetch"
)

const testVersion = "0.0.0.130"

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// testOrigin builds an origin serving a two-file manifest whose bytes live
// in archive BIN_0x00000000, plus the files individually.
type testOrigin struct {
	srv      *httptest.Server
	manifest string
	plainA   []byte
	plainB   []byte
}

func newTestOrigin(t *testing.T) *testOrigin {
	t.Helper()

	o := &testOrigin{
		plainA: []byte("first game file"),
		plainB: bytes.Repeat([]byte("second game file "), 32),
	}
	blobA := deflate(t, o.plainA)
	blobB := deflate(t, o.plainB)
	archive := append(append([]byte(nil), blobA...), blobB...)

	prefix := "/projects/lol_game_client/releases/" + testVersion
	o.manifest = "PKG1\r\n" +
		fmt.Sprintf("%s/files/DATA/a.txt.compressed,BIN_0x00000000,0,%d,0\r\n", prefix, len(blobA)) +
		fmt.Sprintf("%s/files/DATA/sub/b.dds.compressed,BIN_0x00000000,%d,%d,0\r\n", prefix, len(blobA), len(blobB))

	serve := func(body []byte) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			http.ServeContent(w, r, "blob", time.Unix(0, 0), bytes.NewReader(body))
		}
	}

	mux := http.NewServeMux()
	base := "/releases/live" + prefix
	mux.HandleFunc(base+"/packages/files/packagemanifest", serve([]byte(o.manifest)))
	mux.HandleFunc(base+"/packages/files/BIN_0x00000000", serve(archive))
	mux.HandleFunc(base+"/files/DATA/a.txt.compressed", serve(blobA))
	mux.HandleFunc(base+"/files/DATA/sub/b.dds.compressed", serve(blobB))

	o.srv = httptest.NewServer(mux)
	t.Cleanup(o.srv.Close)
	return o
}

func (o *testOrigin) options() config.Options {
	opts := config.Default()
	opts.BaseURL = o.srv.URL
	opts.BasePath = "/releases/live"
	opts.Version = testVersion
	opts.DestDir = "game"
	opts.Normalize()
	return opts
}

func runTest(t *testing.T, opts config.Options, fsys afero.Fs) int {
	t.Helper()
	client := fetch.NewClient(fetch.DefaultOptions())
	return runWith(context.Background(), opts, fsys, client, io.Discard)
}

func TestRunArchiveMode(t *testing.T) {
	o := newTestOrigin(t)
	fsys := afero.NewMemMapFs()

	require.Equal(t, 0, runTest(t, o.options(), fsys))

	gotA, err := afero.ReadFile(fsys, "game/DATA/a.txt")
	require.NoError(t, err)
	assert.Equal(t, o.plainA, gotA)

	gotB, err := afero.ReadFile(fsys, "game/DATA/sub/b.dds")
	require.NoError(t, err)
	assert.Equal(t, o.plainB, gotB)

	// The archive is removed once both referents are extracted.
	exists, _ := afero.Exists(fsys, "game/BIN_0x00000000")
	assert.False(t, exists)

	// Intermediate compressed copies are gone too.
	exists, _ = afero.Exists(fsys, "game/DATA/a.txt.compressed")
	assert.False(t, exists)

	// The manifest stays for the next run.
	data, err := afero.ReadFile(fsys, "game/packagemanifest")
	require.NoError(t, err)
	assert.Equal(t, o.manifest, string(data))
}

func TestRunKeepArchives(t *testing.T) {
	o := newTestOrigin(t)
	fsys := afero.NewMemMapFs()

	opts := o.options()
	opts.KeepArchives = true
	require.Equal(t, 0, runTest(t, opts, fsys))

	exists, _ := afero.Exists(fsys, "game/BIN_0x00000000")
	assert.True(t, exists)

	// A second run against the kept archive skips the download and still
	// succeeds end to end.
	require.Equal(t, 0, runTest(t, opts, fsys))
}

func TestRunParallelJobs(t *testing.T) {
	o := newTestOrigin(t)
	fsys := afero.NewMemMapFs()

	opts := o.options()
	opts.Jobs = 4
	require.Equal(t, 0, runTest(t, opts, fsys))

	gotA, err := afero.ReadFile(fsys, "game/DATA/a.txt")
	require.NoError(t, err)
	assert.Equal(t, o.plainA, gotA)

	gotB, err := afero.ReadFile(fsys, "game/DATA/sub/b.dds")
	require.NoError(t, err)
	assert.Equal(t, o.plainB, gotB)
}

func TestRunIndividualMode(t *testing.T) {
	o := newTestOrigin(t)
	fsys := afero.NewMemMapFs()

	opts := o.options()
	opts.Individual = true
	require.Equal(t, 0, runTest(t, opts, fsys))

	gotA, err := afero.ReadFile(fsys, "game/DATA/a.txt")
	require.NoError(t, err)
	assert.Equal(t, o.plainA, gotA)

	gotB, err := afero.ReadFile(fsys, "game/DATA/sub/b.dds")
	require.NoError(t, err)
	assert.Equal(t, o.plainB, gotB)

	// No archive is ever materialized in individual mode.
	exists, _ := afero.Exists(fsys, "game/BIN_0x00000000")
	assert.False(t, exists)

	// Already-present files are left alone on a second run.
	require.Equal(t, 0, runTest(t, opts, fsys))
}

func TestRunBadManifest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "blob", time.Unix(0, 0), bytes.NewReader([]byte("NOT A MANIFEST\r\n")))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	opts := config.Default()
	opts.BaseURL = srv.URL
	opts.BasePath = "/releases/live"
	opts.Version = testVersion
	opts.DestDir = "game"
	opts.Normalize()

	fsys := afero.NewMemMapFs()
	assert.Equal(t, 1, runTest(t, opts, fsys))

	// A failed parse must not leave any extracted files behind.
	entries, err := afero.ReadDir(fsys, "game")
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "DATA")
	}
}

func TestRunUnreachableOrigin(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	opts := config.Default()
	opts.BaseURL = srv.URL
	opts.Version = testVersion
	opts.DestDir = "game"
	opts.Normalize()

	fsys := afero.NewMemMapFs()
	assert.Equal(t, 1, runTest(t, opts, fsys))
}
