package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(filepath.Join(dir, "absent.csf"))
	require.NoError(t, err)
	require.Nil(t, m.Report)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	csfPath := filepath.Join(dir, "out.csf")

	m := New(csfPath, BuildOptions{Prefilter: "xor", BucketSize: 1000, Workers: 4, HasherSeed: 7})
	m.SetReport(BuildReport{KeyCount: 5000, BucketCount: 5, SolverRetries: 2, BitsPerKey: 1.7})
	require.NoError(t, m.Save())

	got, err := Load(csfPath)
	require.NoError(t, err)
	require.Equal(t, "xor", got.Options.Prefilter)
	require.NotNil(t, got.Report)
	require.Equal(t, 5000, got.Report.KeyCount)
}
