// Package canon organizes large, duplicate-ridden media libraries into a
// canonical archive. It separates three concerns: discovery of files on
// disk (the scanner), enrichment with content-addressed metadata produced
// by external tools (the worklist/import cycle), and materialization into
// an archive by copying or moving files according to a declarative
// manifest (the apply engine).
//
// # Pipeline
//
// The data flow is linear:
//
//	filesystem -> scanner -> sources
//	sources -> worklist -> [external hasher/EXIF] -> import-facts -> facts (+ objects)
//	facts + filter -> cluster (manifest) -> apply -> filesystem
//
// # Usage
//
// Create a Canon backed by a SQLite store, scan one or more roots, export a
// worklist for external enrichment, import the results, then cluster and
// apply:
//
//	c, err := canon.Open("canon.db")
//	if err != nil { ... }
//	defer c.Close()
//
//	counts, warnings, err := c.Scan("/photos", ScanOptions{Role: store.RoleSource})
//
//	err = c.Worklist(w, WorklistOptions{Filters: []string{"source.ext=jpg"}})
//
//	result, err := c.ImportFacts(r, ImportOptions{})
//
//	manifest, err := c.Cluster(ClusterOptions{...})
//
//	report, err := c.Apply(manifest, ApplyOptions{Mode: xfer.ModeCopy})
//
// Canon does not hash files itself, extract EXIF, synchronize across
// machines, or offer a network interface; it only reads, copies, optionally
// renames, and records metadata produced by external collaborators.
package canon
