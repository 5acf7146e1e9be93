// cratevault maintains a local mirror of crates.io release artifacts: a
// clone of the registry index plus a vault of extracted crate sources.
//
// Subcommands:
//
//	index-update   fetch the registry index and reset the local clone to it
//	populate       download and extract crate releases into the vault
//	list           enumerate the releases already materialized in the vault
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/git-pkgs/purl"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/git-pkgs/cratevault"
	"github.com/git-pkgs/cratevault/extract"
	"github.com/git-pkgs/cratevault/fetch"
	"github.com/git-pkgs/cratevault/index"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return errors.New("missing subcommand")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	switch os.Args[1] {
	case "index-update":
		return runIndexUpdate(ctx, args)
	case "populate":
		return runPopulate(ctx, args)
	case "list":
		return runList(args)
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %s", os.Args[1])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cratevault maintains a local mirror of crates.io release artifacts.

Usage:
  cratevault index-update [flags]
  cratevault populate [flags] [crate[@version] | pkg:cargo/crate[@version]]...
  cratevault list [flags]

With no crates given, populate hydrates every crate recorded in the index.

Run "cratevault <subcommand> --help" for subcommand flags.
`)
}

func newLogger(verbose bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Logger()
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if env := os.Getenv("CRATEVAULT_LOG"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	return logger.Level(level)
}

func runIndexUpdate(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("index-update", pflag.ContinueOnError)
	indexPath := flags.String("index", defaultIndexPath(), "path to the local index clone")
	remote := flags.String("remote", index.DefaultRemote, "index repository URL")
	branch := flags.String("branch", index.DefaultBranch, "index branch to track")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	if err := flags.Parse(args); err != nil {
		return err
	}

	logger := newLogger(*verbose)
	ix, err := index.Open(*indexPath,
		index.WithLogger(logger),
		index.WithProgressWriter(os.Stderr))
	if err != nil {
		return err
	}
	return ix.Update(ctx, *remote, *branch)
}

func runPopulate(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("populate", pflag.ContinueOnError)
	root := flags.String("root", defaultVaultPath(), "vault root directory")
	indexPath := flags.String("index", defaultIndexPath(), "path to the local index clone")
	downloadBase := flags.String("download-base", fetch.DefaultDownloadBase, "crate download host")
	concurrency := flags.IntP("concurrency", "c", 0, "parallel populate workers (0 for default)")
	exclusive := flags.Bool("exclusive", false, "serialize concurrent populates of the same release")
	dryRun := flags.BoolP("dry-run", "n", false, "probe releases without downloading")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	if err := flags.Parse(args); err != nil {
		return err
	}

	logger := newLogger(*verbose)
	ix, err := index.Open(*indexPath, index.WithLogger(logger))
	if err != nil {
		return err
	}
	releases, err := resolveReleases(ix, flags.Args())
	if err != nil {
		return err
	}

	fetcher := fetch.NewCircuitBreakerFetcher(
		fetch.NewFetcher(fetch.WithDownloadBase(*downloadBase)))
	defer fetcher.Close()

	if *dryRun {
		return probeReleases(ctx, logger, fetcher, releases)
	}

	opts := []cratevault.CorpusOption{cratevault.WithLogger(logger)}
	if *exclusive {
		opts = append(opts, cratevault.WithExclusiveKeys())
	}
	corpus, err := cratevault.NewCorpus(*root, fetcher, extract.TarGz{}, opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	err = corpus.PopulateAll(ctx, releases, *concurrency, func(done, total int) {
		logger.Info().Int("done", done).Int("total", total).Msg("populate progress")
	})
	if err != nil {
		return err
	}
	logger.Info().
		Int("releases", len(releases)).
		Dur("elapsed", time.Since(start)).
		Msg("populate finished")
	return nil
}

func runList(args []string) error {
	flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
	root := flags.String("root", defaultVaultPath(), "vault root directory")
	if err := flags.Parse(args); err != nil {
		return err
	}

	scan := cratevault.NewVault(*root).CrateVersions()
	for scan.Next() {
		cv, err := scan.Entry()
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			continue
		}
		fmt.Printf("%s %s\n", cv.Name, cv.Version)
	}
	return nil
}

// resolveReleases expands the command-line crate specs into concrete
// releases. A spec is a plain name, name@version, or a cargo PURL; a spec
// without a version expands to every non-yanked version the index records.
// With no specs at all, every crate in the index is hydrated.
func resolveReleases(ix *index.Index, specs []string) ([]cratevault.Release, error) {
	if len(specs) == 0 {
		names, err := ix.All()
		if err != nil {
			return nil, err
		}
		specs = names
	}

	var releases []cratevault.Release
	for _, spec := range specs {
		name, version, err := parseCrateSpec(spec)
		if err != nil {
			return nil, err
		}
		if version != "" {
			releases = append(releases, cratevault.Release{Name: name, Version: version})
			continue
		}
		krate, err := ix.Get(name)
		if err != nil {
			return nil, err
		}
		for _, v := range krate.ReleaseVersions() {
			releases = append(releases, cratevault.Release{Name: name, Version: v})
		}
	}
	return releases, nil
}

// parseCrateSpec accepts "serde", "serde@1.0.228", "pkg:cargo/serde", or
// "pkg:cargo/serde@1.0.228".
func parseCrateSpec(spec string) (name, version string, err error) {
	if strings.HasPrefix(spec, "pkg:") {
		p, err := purl.Parse(spec)
		if err != nil {
			return "", "", fmt.Errorf("parsing %q: %w", spec, err)
		}
		if p.Type != "cargo" {
			return "", "", fmt.Errorf("%q is a %s package, not a crate", spec, p.Type)
		}
		return p.FullName(), p.Version, nil
	}
	name, version, _ = strings.Cut(spec, "@")
	if name == "" {
		return "", "", fmt.Errorf("invalid crate spec %q", spec)
	}
	return name, version, nil
}

// probeReleases checks upstream for each release without downloading.
func probeReleases(ctx context.Context, logger zerolog.Logger, fetcher *fetch.CircuitBreakerFetcher, releases []cratevault.Release) error {
	urls := fetcher.URLs()
	var missing int
	for _, r := range releases {
		size, _, err := fetcher.Head(ctx, urls.Download(r.Name, r.Version))
		if err != nil {
			missing++
			logger.Warn().Err(err).Str("crate", r.Name).Str("version", r.Version).Msg("release unavailable")
			continue
		}
		logger.Info().Str("crate", r.Name).Str("version", r.Version).Int64("size", size).Msg("release available")
	}
	if missing > 0 {
		return fmt.Errorf("%d of %d releases unavailable", missing, len(releases))
	}
	return nil
}

func defaultVaultPath() string {
	if v := os.Getenv("CRATEVAULT_ROOT"); v != "" {
		return v
	}
	return "crates"
}

func defaultIndexPath() string {
	if v := os.Getenv("CRATEVAULT_INDEX"); v != "" {
		return v
	}
	return "crates.io-index"
}
