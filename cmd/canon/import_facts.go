package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robklg/canon"
)

var (
	flagImportAllowArchived bool
	flagImportFile          string
)

var importFactsCmd = &cobra.Command{
	Use:   "import-facts",
	Short: "Import a stream of fact records, attaching them to sources and objects",
	Args:  cobra.NoArgs,
	RunE:  runImportFacts,
}

func init() {
	importFactsCmd.Flags().BoolVar(&flagImportAllowArchived, "allow-archived", false, "permit writing facts onto sources in archive-role roots")
	importFactsCmd.Flags().StringVar(&flagImportFile, "file", "", "read records from this file instead of stdin")
}

func runImportFacts(cmd *cobra.Command, args []string) error {
	c, err := openCanon()
	if err != nil {
		return outputError(err)
	}
	defer c.Close()

	in := os.Stdin
	if flagImportFile != "" {
		f, err := os.Open(flagImportFile)
		if err != nil {
			return outputError(err)
		}
		defer f.Close()
		in = f
	}

	result, err := c.ImportFacts(in, canon.ImportOptions{AllowArchived: flagImportAllowArchived})
	if err != nil {
		return outputError(err)
	}

	for _, s := range result.Skipped {
		fmt.Fprintf(os.Stderr, "skipped source %d: %s\n", s.SourceID, s.Reason)
	}
	for _, r := range result.Rejected {
		fmt.Fprintf(os.Stderr, "rejected source %d: %s\n", r.SourceID, r.Reason)
	}

	if flagFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("%d imported, %d skipped, %d rejected\n", result.Imported, len(result.Skipped), len(result.Rejected))
	return nil
}
