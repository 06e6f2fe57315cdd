// Command synthpic generates synthetic microscopy training images with
// per-particle masks and annotations.
//
// Usage: synthpic -config run.yaml [-n 10] [-out dir] [-seed 1]
//
//	synthpic -preset sopat-catalyst -n 20
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"synthpic/internal/config"
	"synthpic/internal/logging"
	"synthpic/internal/pipeline"
	"synthpic/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML run configuration")
	preset := flag.String("preset", "", "Built-in configuration ("+strings.Join(config.Presets(), ", ")+")")
	n := flag.Int("n", 0, "Number of images (default: from configuration)")
	start := flag.Int("start", 0, "Index of the first image")
	out := flag.String("out", "", "Output directory (default: from configuration)")
	seed := flag.Int64("seed", -1, "Base seed; image i uses seed+i (default: from configuration)")
	watch := flag.Bool("watch", false, "Regenerate whenever the configuration file changes")
	verbose := flag.Bool("v", false, "Verbose logging")
	quiet := flag.Bool("q", false, "Only log warnings and errors")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("synthpic"))
		return
	}
	if (*configPath == "") == (*preset == "") {
		fmt.Fprintln(os.Stderr, "Usage: synthpic -config <run.yaml> | -preset <name> [-n 10] [-out dir] [-seed 1]")
		fmt.Fprintf(os.Stderr, "Presets: %s\n", strings.Join(config.Presets(), ", "))
		os.Exit(2)
	}
	if *watch && *configPath == "" {
		fmt.Fprintln(os.Stderr, "-watch needs -config")
		os.Exit(2)
	}

	log := logging.New(os.Stderr, logging.Level(*verbose, *quiet))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	load := func() (*config.Config, error) {
		var cfg *config.Config
		var err error
		if *preset != "" {
			cfg, err = config.Preset(*preset)
		} else {
			cfg, err = config.Load(*configPath)
		}
		if err != nil {
			return nil, err
		}
		if *out != "" {
			cfg = cfg.WithOutputDir(*out)
		}
		if *seed >= 0 {
			cfg = cfg.WithSeed(uint64(*seed))
		}
		if *n > 0 {
			cfg = cfg.WithImages(*n)
		}
		return cfg, nil
	}

	generate := func(ctx context.Context) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		g, err := pipeline.New(cfg, log)
		if err != nil {
			return err
		}
		g.FirstIndex = *start
		m, err := g.Run(ctx, cfg.Images)
		if err != nil {
			return err
		}
		dir, _ := cfg.ResolvedOutputDir()
		fmt.Printf("Generated %d images in %s\n", len(m.Images), dir)
		return nil
	}

	if err := generate(ctx); err != nil {
		fail(log, err)
	}
	if !*watch {
		return
	}

	w, err := pipeline.NewWatcher(*configPath, 500*time.Millisecond)
	if err != nil {
		fail(log, err)
	}
	w.Log = log
	fmt.Printf("Watching %s (Ctrl-C to stop)\n", w.Path())
	if err := w.Watch(ctx, generate); err != nil && ctx.Err() == nil {
		fail(log, err)
	}
}

func fail(log *slog.Logger, err error) {
	log.Error("generation failed", "err", err)
	os.Exit(1)
}
