// Package manifest persists a build's options and report as a JSON
// sidecar next to the .csf output, grounded on internal/schema.Manager
// (née Schema)'s Load/Save-under-mutex shape: a small JSON-backed struct
// with a path derived from the main artifact's path, guarded by a
// mutex on Save so concurrent reporters (or a future watcher) can't
// interleave writes.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// BuildOptions records the constructor options spec.md §6 enumerates,
// so a later inspection of a .csf file's sidecar can answer "how was
// this built" without re-deriving it from the binary format.
type BuildOptions struct {
	Prefilter   string `json:"prefilter"` // "none", "bloom", "xor", "binaryfuse"
	BucketSize  int    `json:"bucket_size"`
	Workers     int    `json:"workers"`
	Permute     bool   `json:"permute,omitempty"`
	MaxToInfer  int    `json:"max_to_infer,omitempty"`
	Verbose     bool   `json:"verbose,omitempty"`
	HasherSeed  uint64 `json:"hasher_seed"`
}

// BuildReport records what actually happened during a build: retry
// counts and timing, supplementing spec.md's get_stats() surface with
// construction-time detail the original Python implementation's
// verbose build log also surfaces.
type BuildReport struct {
	KeyCount       int     `json:"key_count"`
	BucketCount    int     `json:"bucket_count"`
	SolverRetries  int     `json:"solver_retries"`
	FilterRetries  int     `json:"filter_retries"`
	BuildSeconds   float64 `json:"build_seconds"`
	BitsPerKey     float64 `json:"bits_per_key"`
}

// Manifest is a build's persisted metadata: its options and, once a
// build completes, its report.
type Manifest struct {
	Options BuildOptions  `json:"options"`
	Report  *BuildReport  `json:"report,omitempty"`

	path string
	mu   sync.Mutex
}

// New returns an empty Manifest whose sidecar lives alongside csfPath.
func New(csfPath string, opts BuildOptions) *Manifest {
	return &Manifest{Options: opts, path: sidecarPath(csfPath)}
}

// Load reads a Manifest from csfPath's sidecar. If the sidecar does not
// exist, Load returns a zero-value Manifest (no error), matching
// schema.Load's "missing file means defaults" behavior.
func Load(csfPath string) (*Manifest, error) {
	m := &Manifest{path: sidecarPath(csfPath)}

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Save writes the manifest to its sidecar path.
func (m *Manifest) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}

// SetReport attaches a completed BuildReport to the manifest.
func (m *Manifest) SetReport(r BuildReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Report = &r
}

func sidecarPath(csfPath string) string {
	dir := filepath.Dir(csfPath)
	base := filepath.Base(csfPath)
	return filepath.Join(dir, base+".manifest.json")
}
