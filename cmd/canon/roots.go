package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/robklg/canon/internal/store"
)

var flagRootsPruneYes bool

var rootsCmd = &cobra.Command{
	Use:   "roots",
	Short: "Inspect and manage registered roots",
}

func init() {
	rootsCmd.AddCommand(rootsListCmd)
	rootsCmd.AddCommand(rootsPruneCmd)
	rootsPruneCmd.Flags().BoolVar(&flagRootsPruneYes, "yes", false, "confirm deletion of missing sources")
}

var rootsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered root",
	Args:  cobra.NoArgs,
	RunE:  runRootsList,
}

func runRootsList(cmd *cobra.Command, args []string) error {
	c, err := openCanon()
	if err != nil {
		return outputError(err)
	}
	defer c.Close()

	roots, err := c.Store().ListRoots()
	if err != nil {
		return outputError(err)
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(roots)
	}

	for _, r := range roots {
		fmt.Printf("%d  %-8s  %s\n", r.ID, r.Role, r.Path)
	}
	return nil
}

var rootsPruneCmd = &cobra.Command{
	Use:   "prune <root-id>",
	Short: "Delete sources under a root that were missing on its last scan",
	Long:  "Removes source rows (and their facts) whose seen_rev is behind the root's most recent scan generation. Requires --yes.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRootsPrune,
}

func runRootsPrune(cmd *cobra.Command, args []string) error {
	if !flagRootsPruneYes {
		return outputError(fmt.Errorf("%w: roots prune requires --yes", errUsage))
	}

	var rootID int64
	if _, err := fmt.Sscanf(args[0], "%d", &rootID); err != nil {
		return outputError(fmt.Errorf("%w: invalid root id %q", errUsage, args[0]))
	}

	c, err := openCanon()
	if err != nil {
		return outputError(err)
	}
	defer c.Close()

	root, err := c.Store().RootByID(rootID)
	if err != nil {
		return outputError(err)
	}
	if root == nil {
		return outputError(fmt.Errorf("%w: no root with id %d", errUsage, rootID))
	}

	n, err := pruneMissingSources(c.Store(), root)
	if err != nil {
		return outputError(err)
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Pruned int `json:"pruned"`
		}{Pruned: n})
	}
	fmt.Printf("pruned %s source(s)\n", humanize.Comma(int64(n)))
	return nil
}

// pruneMissingSources deletes every source under root whose seen_rev is
// behind the root's last completed scan generation (i.e. was missing on
// that scan), along with its facts. A fresh scan, not a prune, is how a
// source would come back.
func pruneMissingSources(s *store.Store, root *store.Root) (int, error) {
	// LastGeneration is the generation the most recent scan assigned to
	// every source it saw; anything still behind it was missing then.
	// NextGeneration (one past this) would also catch sources seen in
	// that very scan and wrongly delete them.
	generation, err := s.LastGeneration(root.ID)
	if err != nil {
		return 0, err
	}
	missing, err := s.MissingSources(root.ID, generation)
	if err != nil {
		return 0, err
	}

	if len(missing) == 0 {
		return 0, nil
	}

	ids := make([]int64, len(missing))
	for i, src := range missing {
		ids[i] = src.ID
	}

	tx, err := s.DB().Begin()
	if err != nil {
		return 0, fmt.Errorf("prune: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := store.DeleteSourcesCascade(tx, ids); err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("prune: commit: %w", err)
	}
	return len(missing), nil
}
