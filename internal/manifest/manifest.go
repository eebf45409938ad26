// Package manifest encodes and decodes the portable TOML manifest that a
// cluster run produces and an apply run consumes.
package manifest

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Output describes how destination paths were derived.
type Output struct {
	Pattern string `toml:"pattern"`
	BaseDir string `toml:"base_dir"`
}

// Entry is one file slated for placement in the archive. BasisRev pins the
// entry to the source revision the manifest was generated against, so
// apply's pre-flight can detect a source that changed underneath it.
type Entry struct {
	SourceID int64             `toml:"source_id"`
	RootID   int64             `toml:"root_id"`
	BasisRev int64             `toml:"basis_rev"`
	Path     string            `toml:"path"`
	Dest     string            `toml:"dest"`
	Facts    map[string]string `toml:"facts"`
}

// Manifest is the full self-contained document: the query that produced it,
// the target archive, and the precomputed entries.
type Manifest struct {
	Query         []string  `toml:"query"`
	ArchiveRootID int64     `toml:"archive_root_id"`
	GeneratedAt   time.Time `toml:"generated_at"`
	// RunID identifies the cluster invocation that produced this manifest,
	// so an apply report can cross-reference the run that planned it even
	// after the manifest file has been copied or renamed.
	RunID   string  `toml:"run_id"`
	Output  Output  `toml:"output"`
	Entries []Entry `toml:"entries"`
}

// Write encodes m as TOML to w.
func Write(w io.Writer, m *Manifest) error {
	enc := toml.NewEncoder(w)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}
	return nil
}

// WriteFile encodes m as TOML to path.
func WriteFile(path string, m *Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("manifest: create %s: %w", path, err)
	}
	defer f.Close()
	return Write(f, m)
}

// Read decodes a manifest from r.
func Read(r io.Reader) (*Manifest, error) {
	var m Manifest
	if _, err := toml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	return &m, nil
}

// ReadFile decodes a manifest from path.
func ReadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}
