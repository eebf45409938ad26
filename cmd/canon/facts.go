package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/robklg/canon"
)

var (
	flagFactsFilters         []string
	flagFactsSubpath         string
	flagFactsIncludeArchived bool
	flagFactsIncludeExcluded bool
	flagFactsAll             bool
	flagFactsLimit           int
	flagFactsArchive         string
	flagFactsDeleteYes       bool
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Query fact presence and value distributions over a filtered source set",
}

func init() {
	factsCmd.PersistentFlags().StringArrayVar(&flagFactsFilters, "filter", nil, "filter expression (repeatable; combined with AND)")
	factsCmd.PersistentFlags().StringVar(&flagFactsSubpath, "subpath", "", "restrict to sources whose relative path starts with this prefix")
	factsCmd.PersistentFlags().BoolVar(&flagFactsIncludeArchived, "include-archived", false, "include sources in archive-role roots")
	factsCmd.PersistentFlags().BoolVar(&flagFactsIncludeExcluded, "include-excluded", false, "include sources carrying policy.exclude=true")

	factsCmd.AddCommand(factsOverviewCmd)
	factsCmd.AddCommand(factsKeyCmd)
	factsCmd.AddCommand(factsCoverageCmd)
	factsCmd.AddCommand(factsDeleteCmd)

	factsOverviewCmd.Flags().BoolVar(&flagFactsAll, "all", false, "include verbose built-ins (root, rel_path, device, inode)")
	factsKeyCmd.Flags().IntVar(&flagFactsLimit, "limit", 50, "maximum distinct values to report (0 = unlimited)")
	factsDeleteCmd.Flags().BoolVar(&flagFactsDeleteYes, "yes", false, "actually delete; without it the command only reports what would go")
	factsCoverageCmd.Flags().StringVar(&flagFactsArchive, "archive", "", "restrict 'archived' to this archive root (id:N or path:...)")
}

func factsOpts() canon.CoverageOptions {
	return canon.CoverageOptions{
		Filters:         flagFactsFilters,
		Subpath:         flagFactsSubpath,
		IncludeArchived: flagFactsIncludeArchived,
		IncludeExcluded: flagFactsIncludeExcluded,
	}
}

var factsOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Report fact-key coverage over the filtered source set",
	Args:  cobra.NoArgs,
	RunE:  runFactsOverview,
}

func runFactsOverview(cmd *cobra.Command, args []string) error {
	c, err := openCanon()
	if err != nil {
		return outputError(err)
	}
	defer c.Close()

	rows, n, err := c.FactOverview(factsOpts(), flagFactsAll)
	if err != nil {
		return outputError(err)
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Total int                  `json:"total"`
			Keys  []canon.FactCoverage `json:"keys"`
		}{Total: n, Keys: rows})
	}

	fmt.Printf("%s sources in scope\n", humanize.Comma(int64(n)))
	for _, r := range rows {
		fmt.Printf("%-32s %6d  %5.1f%%\n", r.Key, r.Count, r.Fraction*100)
	}
	return nil
}

var factsKeyCmd = &cobra.Command{
	Use:   "key <fact-key>",
	Short: "Report the value distribution for a specific fact key",
	Args:  cobra.ExactArgs(1),
	RunE:  runFactsKey,
}

func runFactsKey(cmd *cobra.Command, args []string) error {
	c, err := openCanon()
	if err != nil {
		return outputError(err)
	}
	defer c.Close()

	rows, err := c.FactKeyDetail(factsOpts(), args[0], flagFactsLimit)
	if err != nil {
		return outputError(err)
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	for _, r := range rows {
		fmt.Printf("%6d  %s\n", r.Count, r.Value)
	}
	return nil
}

var factsDeleteCmd = &cobra.Command{
	Use:   "delete <fact-key>",
	Short: "Delete a fact key across the filtered source set (dry run without --yes)",
	Args:  cobra.ExactArgs(1),
	RunE:  runFactsDelete,
}

func runFactsDelete(cmd *cobra.Command, args []string) error {
	c, err := openCanon()
	if err != nil {
		return outputError(err)
	}
	defer c.Close()

	del, err := c.DeleteFactKey(factsOpts(), args[0], flagFactsDeleteYes)
	if err != nil {
		return outputError(err)
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			canon.FactDeletion
			Executed bool `json:"executed"`
		}{FactDeletion: del, Executed: flagFactsDeleteYes})
	}

	verb := "deleted"
	if !flagFactsDeleteYes {
		verb = "would delete"
	}
	fmt.Printf("%s %d source fact(s) and %d object fact(s) across %d source(s)\n",
		verb, del.SourceFacts, del.ObjectFacts, del.Sources)
	if !flagFactsDeleteYes {
		fmt.Println("re-run with --yes to execute")
	}
	return nil
}

var factsCoverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Partition the filtered source set by root and report archive coverage",
	Args:  cobra.NoArgs,
	RunE:  runFactsCoverage,
}

func runFactsCoverage(cmd *cobra.Command, args []string) error {
	c, err := openCanon()
	if err != nil {
		return outputError(err)
	}
	defer c.Close()

	var archiveRootID *int64
	if flagFactsArchive != "" {
		rf, err := canon.ParseRootFilter(flagFactsArchive)
		if err != nil {
			return outputError(fmt.Errorf("%w: %s", errUsage, err))
		}
		if rf != nil && rf.ByID {
			archiveRootID = &rf.RootID
		} else if rf != nil {
			root, err := c.Store().RootByPath(rf.Path)
			if err != nil {
				return outputError(err)
			}
			if root == nil {
				return outputError(fmt.Errorf("%w: no root registered at %s", errUsage, rf.Path))
			}
			archiveRootID = &root.ID
		}
	}

	rows, err := c.ArchiveCoverage(factsOpts(), archiveRootID)
	if err != nil {
		return outputError(err)
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	for _, r := range rows {
		fmt.Printf("%s (id=%s)  total=%d hashed=%d archived=%d unarchived=%d\n",
			r.RootPath, strconv.FormatInt(r.RootID, 10), r.Total, r.Hashed, r.Archived, r.Unarchived)
	}
	return nil
}
