package config

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml"

	"github.com/quopp/radsdl/internal/manifest"
)

// Compiled-in defaults, overridable from the config file and the flags.
const (
	DefaultURL  = "l3cdn.riotgames.com"
	DefaultPath = "/releases/live"
	DefaultDest = "lol"
)

// Options is the run context: everything user-selectable, resolved once in
// main and passed explicitly to every component.
type Options struct {
	BaseURL  string
	BasePath string
	Version  string
	DestDir  string

	Individual     bool // fetch files one by one instead of archive blobs
	RemoveExisting bool
	KeepArchives   bool

	Jobs     int
	LogLevel string
}

// Default returns the compiled-in option set.
func Default() Options {
	return Options{
		BaseURL:  DefaultURL,
		BasePath: DefaultPath,
		DestDir:  DefaultDest,
		Jobs:     1,
		LogLevel: "info",
	}
}

// ApplyFile overlays values from a TOML defaults file. Absent keys leave
// the current values untouched.
func (o *Options) ApplyFile(path string) error {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	o.BaseURL = stringOr(tree, "origin.url", o.BaseURL)
	o.BasePath = stringOr(tree, "origin.path", o.BasePath)
	o.DestDir = stringOr(tree, "dest", o.DestDir)
	o.LogLevel = stringOr(tree, "log_level", o.LogLevel)
	if v, ok := tree.Get("jobs").(int64); ok && v > 0 {
		o.Jobs = int(v)
	}
	return nil
}

// Normalize canonicalizes paths and the origin URL: backslashes become
// slashes, trailing slashes are dropped, and a missing scheme defaults to
// http as it does for the stock CDN host.
func (o *Options) Normalize() {
	o.DestDir = strings.TrimRight(strings.ReplaceAll(o.DestDir, "\\", "/"), "/")
	o.BasePath = strings.TrimRight(o.BasePath, "/")
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if !strings.Contains(o.BaseURL, "://") {
		o.BaseURL = "http://" + o.BaseURL
	}
	if o.Jobs < 1 {
		o.Jobs = 1
	}
}

// Source derives the manifest source descriptor from the options.
func (o Options) Source() manifest.Source {
	return manifest.Source{
		BaseURL:  o.BaseURL,
		BasePath: o.BasePath,
		Version:  o.Version,
		DestDir:  o.DestDir,
	}
}

func stringOr(tree *toml.Tree, key, def string) string {
	if v, ok := tree.Get(key).(string); ok && v != "" {
		return v
	}
	return def
}
