// Package config loads the settings.yaml that drives a build.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the parsed settings.yaml.
type Settings struct {
	// OutputDBPath is where the artifact is written. The previous artifact
	// is downloaded to the same path before the build.
	OutputDBPath string `yaml:"output_db_path"`

	// SchemaVersion is stamped into meta and the manifest.
	SchemaVersion string `yaml:"schema_version"`

	// ManualAliasCSVPath points at the curated alias CSV. Empty disables
	// manual alias seeding.
	ManualAliasCSVPath string `yaml:"manual_alias_csv_path"`

	// ManifestPath is where latest.json is written. Defaults next to the
	// artifact.
	ManifestPath string `yaml:"manifest_path"`

	Textage   TextageSettings   `yaml:"textage"`
	Github    GithubSettings    `yaml:"github"`
	Stability StabilitySettings `yaml:"stability"`

	// LogMode selects the log encoder: "dev" or "prod".
	LogMode string `yaml:"log_mode"`
}

type TextageSettings struct {
	BaseURL        string `yaml:"base_url"`
	HTTPTimeoutSec int    `yaml:"http_timeout_sec"`
}

type GithubSettings struct {
	Owner           string `yaml:"owner"`
	Repo            string `yaml:"repo"`
	UploadToRelease bool   `yaml:"upload_to_release"`
	AssetName       string `yaml:"asset_name"`
}

type StabilitySettings struct {
	// MissingPolicy is "error" or "warn" for published keys absent from
	// the candidate artifact.
	MissingPolicy string `yaml:"missing_policy"`
}

// Defaults returns the settings used when a key is absent.
func Defaults() Settings {
	return Settings{
		OutputDBPath:  "song_master.sqlite",
		SchemaVersion: "1",
		ManifestPath:  "latest.json",
		Textage: TextageSettings{
			BaseURL:        "https://textage.cc/score/",
			HTTPTimeoutSec: 30,
		},
		Github: GithubSettings{
			AssetName: "song_master.sqlite",
		},
		Stability: StabilitySettings{
			MissingPolicy: "error",
		},
		LogMode: "dev",
	}
}

// Load reads and validates settings from path.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	settings := Defaults()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate checks cross-field requirements.
func (s *Settings) Validate() error {
	if s.OutputDBPath == "" {
		return fmt.Errorf("settings: output_db_path must not be empty")
	}
	if s.SchemaVersion == "" {
		return fmt.Errorf("settings: schema_version must not be empty")
	}
	if s.Textage.BaseURL == "" {
		return fmt.Errorf("settings: textage.base_url must not be empty")
	}
	if s.Textage.HTTPTimeoutSec <= 0 {
		return fmt.Errorf("settings: textage.http_timeout_sec must be positive")
	}
	if s.Github.UploadToRelease && (s.Github.Owner == "" || s.Github.Repo == "") {
		return fmt.Errorf("settings: github.owner and github.repo are required when upload_to_release is set")
	}
	switch s.Stability.MissingPolicy {
	case "error", "warn":
	default:
		return fmt.Errorf("settings: stability.missing_policy must be \"error\" or \"warn\", got %q",
			s.Stability.MissingPolicy)
	}
	return nil
}

// HTTPTimeout returns the Textage fetch timeout as a duration.
func (s *Settings) HTTPTimeout() time.Duration {
	return time.Duration(s.Textage.HTTPTimeoutSec) * time.Second
}
