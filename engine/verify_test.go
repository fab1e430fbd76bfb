package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/siptransfer/report"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestVerifier(t *testing.T) {
	files := map[string]string{
		"bagit.txt":        "BagIt-Version: 1.0",
		"data/a.txt":       "alpha",
		"data/sub/b.txt":   "beta",
		"data/sub/c.txt":   "gamma",
		"manifest-md5.txt": "checksums",
	}

	tests := []struct {
		name   string
		mutate func(t *testing.T, dst string)
		errors []string
	}{
		{
			name: "identical",
		},
		{
			name: "mismatch",
			mutate: func(t *testing.T, dst string) {
				require.NoError(t, os.WriteFile(filepath.Join(dst, "data", "a.txt"), []byte("ALPHA"), 0o644))
			},
			errors: []string{"Checksum mismatch for 'data/a.txt'."},
		},
		{
			name: "missing",
			mutate: func(t *testing.T, dst string) {
				require.NoError(t, os.Remove(filepath.Join(dst, "data", "sub", "c.txt")))
			},
			errors: []string{"Missing file 'data/sub/c.txt' at destination."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := filepath.Join(t.TempDir(), "sip")
			dst := filepath.Join(t.TempDir(), "sip")
			writeTree(t, src, files)
			writeTree(t, dst, files)
			if tt.mutate != nil {
				tt.mutate(t, dst)
			}

			log := NewVerifier(3).Verify(context.Background(), src, dst)

			var bodies []string
			for _, e := range log.Filter(report.SeverityError) {
				bodies = append(bodies, e.Body)
				assert.Equal(t, VerificationOrigin, e.Origin)
			}
			assert.Equal(t, tt.errors, bodies)
			if len(tt.errors) == 0 {
				assert.Len(t, filterBody(log, "Verified 5 file(s)."), 1)
			}
		})
	}
}

func TestVerifierSingleFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "doc.txt")
	dst := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("content"), 0o644))

	log := NewVerifier(0).Verify(context.Background(), src, dst)
	assert.False(t, log.Failed())
	assert.Len(t, filterBody(log, "Verified 1 file(s)."), 1)
}

func TestVerifierMissingSource(t *testing.T) {
	log := NewVerifier(2).Verify(context.Background(), filepath.Join(t.TempDir(), "gone"), t.TempDir())
	require.True(t, log.Failed())
	assert.Contains(t, log.Filter(report.SeverityError)[0].Body, "Verification aborted")
}
