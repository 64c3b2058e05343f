package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/apex/log"
	"github.com/apex/log/handlers/text"

	"github.com/quopp/radsdl/internal/config"
)

type args struct {
	Version      string `arg:"-v,--version,required" help:"game version to download (e.g. 0.0.0.130)"`
	URL          string `arg:"-u,--url" help:"content origin URL" placeholder:"URL"`
	Path         string `arg:"-p,--path" help:"origin path prefix" placeholder:"PATH"`
	Dest         string `arg:"-d,--dest" help:"destination folder" placeholder:"DIR"`
	Individual   bool   `arg:"-i,--individual" help:"download files one by one instead of from BIN archives (not recommended)"`
	Redownload   bool   `arg:"-r,--redownload" help:"remove existing files and download them again"`
	KeepArchives bool   `arg:"-k,--keep-archives" help:"keep BIN archives after extracting game files"`
	Jobs         int    `arg:"-j,--jobs" help:"parallel downloads and extractions" placeholder:"N"`
	Config       string `arg:"-c,--config" help:"TOML file with option defaults" placeholder:"FILE"`
	Verbose      bool   `arg:"--verbose" help:"enable debug logging"`
}

func (args) Description() string {
	return "radsdl fetches one version of the game client's asset set from the content origin and reconstructs the game files on disk."
}

func main() {
	var a args
	arg.MustParse(&a)

	opts := config.Default()
	if a.Config != "" {
		if err := opts.ApplyFile(a.Config); err != nil {
			log.Errorf("%v", err)
			os.Exit(1)
		}
	}

	// Flags override the defaults file.
	opts.Version = a.Version
	if a.URL != "" {
		opts.BaseURL = a.URL
	}
	if a.Path != "" {
		opts.BasePath = a.Path
	}
	if a.Dest != "" {
		opts.DestDir = a.Dest
	}
	if a.Jobs > 0 {
		opts.Jobs = a.Jobs
	}
	opts.Individual = a.Individual
	opts.RemoveExisting = a.Redownload
	opts.KeepArchives = a.KeepArchives
	if a.Verbose {
		opts.LogLevel = "debug"
	}
	opts.Normalize()

	log.SetHandler(text.New(os.Stderr))
	if level, err := log.ParseLevel(opts.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, opts, os.Stdout))
}
