package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/robklg/canon"
)

var (
	flagWorklistFilters         []string
	flagWorklistSubpath         string
	flagWorklistIncludeArchived bool
	flagWorklistIncludeExcluded bool
	flagWorklistOut             string
)

var worklistCmd = &cobra.Command{
	Use:   "worklist",
	Short: "Stream a snapshot of sources matching a filter as line-delimited JSON",
	Args:  cobra.NoArgs,
	RunE:  runWorklist,
}

func init() {
	worklistCmd.Flags().StringArrayVar(&flagWorklistFilters, "filter", nil, "filter expression (repeatable; combined with AND)")
	worklistCmd.Flags().StringVar(&flagWorklistSubpath, "subpath", "", "restrict to sources whose relative path starts with this prefix")
	worklistCmd.Flags().BoolVar(&flagWorklistIncludeArchived, "include-archived", false, "include sources in archive-role roots")
	worklistCmd.Flags().BoolVar(&flagWorklistIncludeExcluded, "include-excluded", false, "include sources carrying policy.exclude=true")
	worklistCmd.Flags().StringVar(&flagWorklistOut, "out", "", "write the worklist to this path instead of stdout")
}

func runWorklist(cmd *cobra.Command, args []string) error {
	c, err := openCanon()
	if err != nil {
		return outputError(err)
	}
	defer c.Close()

	opts := canon.WorklistOptions{
		Filters:         flagWorklistFilters,
		Subpath:         flagWorklistSubpath,
		IncludeArchived: flagWorklistIncludeArchived,
		IncludeExcluded: flagWorklistIncludeExcluded,
	}

	out := os.Stdout
	if flagWorklistOut != "" {
		f, err := os.Create(flagWorklistOut)
		if err != nil {
			return outputError(err)
		}
		defer f.Close()
		out = f
	}
	if err := c.Worklist(out, opts); err != nil {
		return outputError(err)
	}
	return nil
}
