package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/robklg/canon"
	"github.com/robklg/canon/internal/store"
)

var (
	flagScanArchive bool
	flagScanSkip    []string
)

var scanCmd = &cobra.Command{
	Use:   "scan <path>...",
	Short: "Walk one or more roots, reconciling discovered files against stored sources",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&flagScanArchive, "archive", false, "register this root with role=archive instead of source")
	scanCmd.Flags().StringArrayVar(&flagScanSkip, "skip", nil, "doublestar glob (repeatable) of paths to skip, relative to the root; .git is always skipped")
}

func runScan(cmd *cobra.Command, args []string) error {
	c, err := openCanon()
	if err != nil {
		return outputError(err)
	}
	defer c.Close()

	role := store.RoleSource
	if flagScanArchive {
		role = store.RoleArchive
	}

	var counts canon.ScanCounts
	for _, path := range args {
		got, warnings, err := c.Scan(path, canon.ScanOptions{Role: role, SkipGlobs: flagScanSkip})
		if err != nil {
			return outputError(err)
		}
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, color.YellowString("warning: %s", w.Error()))
		}
		counts.New += got.New
		counts.Updated += got.Updated
		counts.Moved += got.Moved
		counts.Unchanged += got.Unchanged
		counts.Missing += got.Missing
		counts.BytesSeen += got.BytesSeen
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	}

	fmt.Printf("%d new, %d updated, %d moved, %d unchanged, %d missing (%s scanned)\n",
		counts.New, counts.Updated, counts.Moved, counts.Unchanged, counts.Missing,
		humanize.Bytes(uint64(counts.BytesSeen)))
	return nil
}
