package cli

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songmaster/internal/release"
	"songmaster/internal/textage"
)

// newSourceServer serves the three score tables with fixed bodies and
// returns the server plus the name→sha256 map a previous publish would have
// recorded for them.
func newSourceServer(t *testing.T, bodies map[string]string) (*httptest.Server, map[string]string) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[filepath.Base(r.URL.Path)]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)

	hashes := map[string]string{}
	for name, body := range bodies {
		sum := sha256.Sum256([]byte(body))
		hashes[name] = hex.EncodeToString(sum[:])
	}
	return server, hashes
}

func writeBuildSettings(t *testing.T, dir, baseURL string) string {
	t.Helper()
	settingsPath := filepath.Join(dir, "settings.yaml")
	content := fmt.Sprintf(
		"output_db_path: %s\nmanifest_path: %s\ntextage:\n  base_url: %s/\n",
		filepath.Join(dir, "song_master.sqlite"),
		filepath.Join(dir, "latest.json"),
		baseURL)
	require.NoError(t, os.WriteFile(settingsPath, []byte(content), 0644))
	return settingsPath
}

func TestBuildShortCircuitsOnUnchangedSources(t *testing.T) {
	dir := t.TempDir()
	server, hashes := newSourceServer(t, map[string]string{
		textage.SourceTitleTbl: `titletbl={};`,
		textage.SourceDataTbl:  `datatbl={};`,
		textage.SourceActTbl:   `actbl={};`,
	})
	settingsPath := writeBuildSettings(t, dir, server.URL)

	// Previous publish: an artifact plus a manifest recording the same
	// source hashes the server still serves.
	artifactPath := filepath.Join(dir, "song_master.sqlite")
	artifactBody := []byte("previously published artifact")
	require.NoError(t, os.WriteFile(artifactPath, artifactBody, 0644))
	manifest, err := release.BuildManifest(artifactPath, "1", "t0", hashes)
	require.NoError(t, err)
	manifestPath := filepath.Join(dir, "latest.json")
	require.NoError(t, release.WriteManifest(manifestPath, manifest))
	manifestBody, err := os.ReadFile(manifestPath)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", SettingsPath: settingsPath}
	cmd := NewBuildCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--skip-download"})

	err = cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Sources unchanged")

	// Neither the artifact nor the manifest may be touched.
	gotArtifact, err := os.ReadFile(artifactPath)
	require.NoError(t, err)
	assert.Equal(t, artifactBody, gotArtifact)
	gotManifest, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, manifestBody, gotManifest)

	_, err = os.Stat(artifactPath + ".next")
	assert.True(t, os.IsNotExist(err), "no staging copy should be created")
}

func TestBuildProceedsWhenSourcesChanged(t *testing.T) {
	dir := t.TempDir()
	server, _ := newSourceServer(t, map[string]string{
		textage.SourceTitleTbl: `not a score table`,
		textage.SourceDataTbl:  `not a score table`,
		textage.SourceActTbl:   `not a score table`,
	})
	settingsPath := writeBuildSettings(t, dir, server.URL)

	artifactPath := filepath.Join(dir, "song_master.sqlite")
	artifactBody := []byte("previously published artifact")
	require.NoError(t, os.WriteFile(artifactPath, artifactBody, 0644))
	manifest, err := release.BuildManifest(artifactPath, "1", "t0", map[string]string{
		textage.SourceTitleTbl: "stale",
		textage.SourceDataTbl:  "stale",
		textage.SourceActTbl:   "stale",
	})
	require.NoError(t, err)
	require.NoError(t, release.WriteManifest(filepath.Join(dir, "latest.json"), manifest))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", SettingsPath: settingsPath}
	cmd := NewBuildCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--skip-download"})

	// The gate opens, the unparseable tables abort the run, and the
	// published artifact stays authoritative.
	err = cmd.Execute()
	require.Error(t, err)
	assert.NotContains(t, buf.String(), "Sources unchanged")

	gotArtifact, err := os.ReadFile(artifactPath)
	require.NoError(t, err)
	assert.Equal(t, artifactBody, gotArtifact)
}
