package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/robklg/canon"
	"github.com/robklg/canon/internal/manifest"
)

var (
	flagClusterFilters []string
	flagClusterSubpath string
	flagClusterDest    string
	flagClusterPattern string
	flagClusterOut     string
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Generate a manifest placing filtered sources into an archive",
	Args:  cobra.NoArgs,
	RunE:  runCluster,
}

func init() {
	clusterCmd.Flags().StringArrayVar(&flagClusterFilters, "filter", nil, "filter expression (repeatable; combined with AND)")
	clusterCmd.Flags().StringVar(&flagClusterSubpath, "subpath", "", "restrict to sources whose relative path starts with this prefix")
	clusterCmd.Flags().StringVar(&flagClusterDest, "dest", "", "destination path inside a registered archive root (required)")
	clusterCmd.Flags().StringVar(&flagClusterPattern, "pattern", "", "output pattern (default {hash_short}/{filename})")
	clusterCmd.Flags().StringVar(&flagClusterOut, "out", "", "write the manifest to this path instead of stdout")
	clusterCmd.MarkFlagRequired("dest")
}

func runCluster(cmd *cobra.Command, args []string) error {
	c, err := openCanon()
	if err != nil {
		return outputError(err)
	}
	defer c.Close()

	m, err := c.Cluster(canon.ClusterOptions{
		Filters: flagClusterFilters,
		Subpath: flagClusterSubpath,
		Dest:    flagClusterDest,
		Pattern: flagClusterPattern,
	})
	if err != nil {
		return outputError(err)
	}

	fmt.Fprintf(os.Stderr, "cluster %s: %s entr(ies) targeting archive root %d\n",
		m.RunID, humanize.Comma(int64(len(m.Entries))), m.ArchiveRootID)

	if flagClusterOut != "" {
		return manifest.WriteFile(flagClusterOut, m)
	}
	return manifest.Write(os.Stdout, m)
}
