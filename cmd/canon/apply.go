package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/robklg/canon"
	"github.com/robklg/canon/internal/manifest"
	"github.com/robklg/canon/internal/xfer"
)

var (
	flagApplyMode              string
	flagApplyDryRun            bool
	flagApplyYes               bool
	flagApplyRoot              string
	flagApplyAllowCrossArchive bool
)

var applyCmd = &cobra.Command{
	Use:   "apply <manifest>",
	Short: "Validate, pre-flight, and materialize a manifest's entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().StringVar(&flagApplyMode, "mode", "copy", "transfer mode: copy|rename|move")
	applyCmd.Flags().BoolVar(&flagApplyDryRun, "dry-run", false, "print the planned action per entry without touching the filesystem")
	applyCmd.Flags().BoolVar(&flagApplyYes, "yes", false, "confirm a destructive apply (required for --mode rename or move)")
	applyCmd.Flags().StringVar(&flagApplyRoot, "root", "", "restrict materialization to one source root (id:N or path:...)")
	applyCmd.Flags().BoolVar(&flagApplyAllowCrossArchive, "allow-cross-archive-duplicates", false, "don't skip objects already present in a different archive root")
}

func runApply(cmd *cobra.Command, args []string) error {
	mode := xfer.Mode(flagApplyMode)
	switch mode {
	case xfer.ModeCopy, xfer.ModeRename, xfer.ModeMove:
	default:
		return outputError(fmt.Errorf("%w: unknown --mode %q, want copy, rename, or move", errUsage, flagApplyMode))
	}

	// Open Question decision: --yes gates destructive modes (rename, move);
	// copy and any --dry-run run without it.
	if !flagApplyDryRun && !flagApplyYes && mode != xfer.ModeCopy {
		return outputError(fmt.Errorf("%w: --mode %s requires --yes (or --dry-run)", errUsage, mode))
	}

	m, err := manifest.ReadFile(args[0])
	if err != nil {
		return outputError(fmt.Errorf("%w: %s", errUsage, err))
	}

	var rootFilter *canon.RootFilter
	if flagApplyRoot != "" {
		rootFilter, err = canon.ParseRootFilter(flagApplyRoot)
		if err != nil {
			return outputError(fmt.Errorf("%w: %s", errUsage, err))
		}
	}

	c, err := openCanon()
	if err != nil {
		return outputError(err)
	}
	defer c.Close()

	if !flagApplyDryRun {
		fmt.Fprintln(os.Stderr, "note: run one apply at a time; concurrent applies over overlapping destinations are undefined")
	}

	result, err := c.Apply(m, canon.ApplyOptions{
		Mode:                        mode,
		DryRun:                      flagApplyDryRun,
		AllowCrossArchiveDuplicates: flagApplyAllowCrossArchive,
		RootFilter:                  rootFilter,
	})

	if len(result.Collisions) > 0 {
		for dest, ids := range result.Collisions {
			fmt.Fprintln(os.Stderr, color.RedString("collision at %s: sources %v", dest, ids))
		}
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil && err == nil {
			err = encErr
		}
	} else {
		for _, e := range result.Entries {
			line := fmt.Sprintf("%s  source %d -> %s", e.Outcome, e.SourceID, e.Dest)
			if e.Err != nil {
				line += ": " + e.Err.Error()
			}
			if e.Outcome == canon.OutcomeApplied || e.Outcome == canon.OutcomePlanned {
				fmt.Println(line)
			} else {
				fmt.Fprintln(os.Stderr, line)
			}
		}
		fmt.Fprintf(os.Stderr, "run %s: %d entries\n", result.RunID, len(result.Entries))
	}

	if err != nil {
		errorHandled = true
		return err
	}
	return nil
}
