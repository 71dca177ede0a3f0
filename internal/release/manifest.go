package release

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ManifestName is the sidecar document published next to each artifact.
const ManifestName = "latest.json"

// Manifest describes one published artifact. SourceHashes records the
// SHA-256 of each raw source document at generation time; the short-circuit
// check compares freshly fetched hashes against them.
type Manifest struct {
	FileName      string            `json:"file_name"`
	SchemaVersion string            `json:"schema_version"`
	GeneratedAt   string            `json:"generated_at"`
	SHA256        string            `json:"sha256"`
	ByteSize      int64             `json:"byte_size"`
	SourceHashes  map[string]string `json:"source_hashes,omitempty"`
}

// FileSHA256 computes the hex SHA-256 digest of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// BuildManifest measures the artifact at artifactPath and assembles its
// manifest.
func BuildManifest(artifactPath, schemaVersion, generatedAt string, sourceHashes map[string]string) (*Manifest, error) {
	digest, err := FileSHA256(artifactPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", artifactPath, err)
	}
	return &Manifest{
		FileName:      filepath.Base(artifactPath),
		SchemaVersion: schemaVersion,
		GeneratedAt:   generatedAt,
		SHA256:        digest,
		ByteSize:      info.Size(),
		SourceHashes:  sourceHashes,
	}, nil
}

// WriteManifest writes the manifest as indented UTF-8 JSON with a trailing
// newline.
func WriteManifest(path string, m *Manifest) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create manifest dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a manifest from path. A missing file returns nil with
// no error, the state before any publish.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// ValidateManifest checks a manifest against the actual artifact file.
func ValidateManifest(m *Manifest, artifactPath string) error {
	digest, err := FileSHA256(artifactPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(artifactPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", artifactPath, err)
	}

	if m.FileName != filepath.Base(artifactPath) {
		return fmt.Errorf("manifest file_name mismatch: %s != %s",
			m.FileName, filepath.Base(artifactPath))
	}
	if m.SHA256 != digest {
		return fmt.Errorf("manifest sha256 mismatch")
	}
	if m.ByteSize != info.Size() {
		return fmt.Errorf("manifest byte_size mismatch: %d != %d", m.ByteSize, info.Size())
	}
	return nil
}

// SourcesUnchanged reports whether freshly computed source hashes exactly
// match the ones recorded in the previous manifest. True means the whole
// build can short-circuit.
func SourcesUnchanged(prev *Manifest, fresh map[string]string) bool {
	if prev == nil || len(prev.SourceHashes) == 0 {
		return false
	}
	if len(prev.SourceHashes) != len(fresh) {
		return false
	}
	for name, hash := range fresh {
		if prev.SourceHashes[name] != hash {
			return false
		}
	}
	return true
}
