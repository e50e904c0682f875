// Command ibhops counts forwarding-table hops from one node to a set of
// targets and prints the result as YAML.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/ibhops/internal/config"
	"github.com/gyaneshwarpardhi/ibhops/internal/engine"
	"github.com/gyaneshwarpardhi/ibhops/internal/fabric"
	"github.com/gyaneshwarpardhi/ibhops/internal/progress"
	"github.com/gyaneshwarpardhi/ibhops/internal/query"
	"github.com/gyaneshwarpardhi/ibhops/internal/sink"
)

type options struct {
	config  string
	source  string
	targets string
	filter  string
	verbose bool
}

// output is the YAML document written to stdout.
type output struct {
	Report  *engine.Report `yaml:"report"`
	Entries []sink.Entry   `yaml:"entries"`
}

func main() {
	var o options
	flag.StringVar(&o.config, "config", "configs/fabric.yaml", "Path to fabric YAML config")
	flag.StringVar(&o.source, "source", "", "Source node id or GUID")
	flag.StringVar(&o.targets, "target", "", "Comma-separated target node ids or GUIDs (default: every entity)")
	flag.StringVar(&o.filter, "filter", "", `Target filter, e.g. 'kind == "adapter" AND lid > 0'`)
	flag.BoolVar(&o.verbose, "v", false, "Log analysis progress to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "ibhops:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, w io.Writer) error {
	if o.source == "" {
		return errors.New("-source is required")
	}
	cfg, err := config.Load(o.config)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	f, err := fabric.FromConfig(&cfg.Fabric)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eng, err := engine.New(ctx, f, cfg.Analysis)
	if err != nil {
		return err
	}
	defer eng.Shutdown()

	q := query.New(o.source, splitList(o.targets)...)
	q.Filter = o.filter
	store := sink.NewStore()
	rep, err := eng.Analyze(ctx, q, store, progress.NewLog(slog.Default(), "analysis", q.ID))
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(output{Report: rep, Entries: store.Entries()}); err != nil {
		return err
	}
	return enc.Close()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
