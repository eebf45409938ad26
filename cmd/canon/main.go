package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/robklg/canon"
	"github.com/robklg/canon/internal/filter"
)

var (
	flagDB     string
	flagFormat string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	err := rootCmd.Execute()
	os.Exit(exitCode(err))
}

// exitCode maps an error to Canon's exit-code contract: 0 success, 2
// usage/parse error, 3 pre-flight failure, 4 partial apply, 5 store locked
// or corrupt.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if !errorHandled {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	var parseErr *filter.ParseError
	switch {
	case errors.Is(err, errUsage), errors.As(err, &parseErr):
		return 2
	case errors.Is(err, canon.ErrPreflightFailed):
		return 3
	case errors.Is(err, canon.ErrPartialApply):
		return 4
	case errors.Is(err, errStoreLocked):
		return 5
	default:
		return 1
	}
}

// errUsage and errStoreLocked are sentinels the command layer wraps
// domain errors with to select an exit code; canon itself doesn't know
// about exit codes.
var (
	errUsage       = errors.New("usage error")
	errStoreLocked = errors.New("store locked or corrupt")
)

var rootCmd = &cobra.Command{
	Use:           "canon",
	Short:         "Organize large, duplicate-ridden media libraries into a canonical archive",
	Long:          "Canon separates discovery of files on disk, enrichment with content-addressed metadata, and materialization into an archive by copying or moving files per a declarative manifest.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch flagFormat {
		case "json", "text":
			return nil
		default:
			return fmt.Errorf("%w: unknown --format %q, want json or text", errUsage, flagFormat)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: ${HOME}/.canon/canon.db)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: text|json")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(worklistCmd)
	rootCmd.AddCommand(importFactsCmd)
	rootCmd.AddCommand(factsCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(rootsCmd)
}

// openCanon opens the store at the --db path, or Canon's default.
func openCanon() (*canon.Canon, error) {
	dbPath := flagDB
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: resolve home directory: %s", errStoreLocked, err)
		}
		dbPath = filepath.Join(home, ".canon", "canon.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create database directory: %s", errStoreLocked, err)
	}
	c, err := canon.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errStoreLocked, err)
	}
	return c, nil
}

// outputError marks an error as already printed to the user and returns it
// so RunE can propagate it to Cobra for exit-code mapping.
func outputError(err error) error {
	errorHandled = true
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	return err
}
