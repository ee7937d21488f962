// Package main is the entry point for the Truly database migration tool.
// It applies the embedded goose migrations of the SQL stores, or the unique
// indexes of the MongoDB store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/truly/internal/config"
	"github.com/prn-tf/truly/internal/logging"
	"github.com/prn-tf/truly/internal/repository/factory"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const migrateTimeout = 5 * time.Minute

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("truly-migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() < 1 {
		printUsage(stderr)
		return 1
	}

	command := fs.Arg(0)

	switch command {
	case "version":
		fmt.Fprintf(stdout, "Truly Migration Tool\n")
		fmt.Fprintf(stdout, "Version: %s\n", Version)
		fmt.Fprintf(stdout, "Build Time: %s\n", BuildTime)
		fmt.Fprintf(stdout, "Git Commit: %s\n", GitCommit)
		return 0

	case "up", "down", "status":
		if err := migrate(command, *configPath, stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0

	case "help", "-h", "--help":
		printUsage(stdout)
		return 0

	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 1
	}
}

func migrate(command, configPath string, stdout io.Writer) error {
	cfg, err := config.LoadForStore(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer closer.Close()
	logger = logger.Level(zerolog.WarnLevel)

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	store, err := factory.Open(ctx, cfg.Database, factory.Options{}, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	switch command {
	case "up":
		if err := store.Migrator.Up(ctx); err != nil {
			return err
		}
	case "down":
		if err := store.Migrator.Down(ctx); err != nil {
			return err
		}
	}

	version, err := store.Migrator.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "driver: %s\nschema version: %d\n", store.Driver, version)

	if command == "status" {
		states, err := store.Migrator.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tMIGRATION\tSTATE")
		for _, s := range states {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Version, s.Name, state)
		}
		return tw.Flush()
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Truly Migration Tool

Usage:
  truly-migrate [-config path] <command>

Commands:
  up          Apply all pending migrations
  down        Roll back the last migration
  status      Show the schema version and every migration
  version     Print version information
  help        Show this help message

The store is selected by database.driver (sqlite, postgres or mongo).
Settings can be overridden with TRULY_* environment variables, e.g.
  TRULY_DATABASE_DRIVER=postgres TRULY_DATABASE_HOST=db truly-migrate up`)
}
