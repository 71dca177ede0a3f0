package release

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultAPIBaseURL = "https://api.github.com"

// GithubError represents a failed GitHub Releases API call.
type GithubError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *GithubError) Error() string {
	return fmt.Sprintf("github %s failed: status=%d body=%s",
		e.Operation, e.StatusCode, e.Body)
}

// Release is the slice of the GitHub release payload this tool uses.
type Release struct {
	ID        int64   `json:"id"`
	TagName   string  `json:"tag_name"`
	UploadURL string  `json:"upload_url"`
	Assets    []Asset `json:"assets"`
}

// Asset is one release asset.
type Asset struct {
	Name               string `json:"name"`
	URL                string `json:"url"`
	BrowserDownloadURL string `json:"browser_download_url"`
	UpdatedAt          string `json:"updated_at"`
}

// Client talks to the GitHub Releases API for one repository.
type Client struct {
	owner      string
	repo       string
	token      string
	apiBaseURL string
	httpClient *http.Client
}

// NewClient builds a release client. The token may be empty for anonymous
// downloads from public repositories.
func NewClient(owner, repo, token string) *Client {
	return &Client{
		owner:      owner,
		repo:       repo,
		token:      token,
		apiBaseURL: defaultAPIBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// LatestRelease fetches the latest release, or nil if the repository has
// none yet.
func (c *Client) LatestRelease(ctx context.Context) (*Release, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.apiBaseURL, c.owner, c.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("get latest release", resp)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode latest release: %w", err)
	}
	return &release, nil
}

// ListTags returns every release tag in the repository, for tag allocation.
func (c *Client) ListTags(ctx context.Context) ([]string, error) {
	var tags []string
	for page := 1; ; page++ {
		u := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=100&page=%d",
			c.apiBaseURL, c.owner, c.repo, page)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("list releases: %w", err)
		}
		var releases []Release
		err = json.NewDecoder(resp.Body).Decode(&releases)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, &GithubError{Operation: "list releases", StatusCode: resp.StatusCode}
		}
		if err != nil {
			return nil, fmt.Errorf("decode releases: %w", err)
		}
		for _, r := range releases {
			tags = append(tags, r.TagName)
		}
		if len(releases) < 100 {
			return tags, nil
		}
	}
}

// CreateRelease creates a new release for the tag.
func (c *Client) CreateRelease(ctx context.Context, tag string) (*Release, error) {
	payload, err := json.Marshal(map[string]any{
		"tag_name":               tag,
		"name":                   tag,
		"draft":                  false,
		"prerelease":             false,
		"generate_release_notes": false,
	})
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/repos/%s/%s/releases", c.apiBaseURL, c.owner, c.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, apiError("create release", resp)
	}
	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode created release: %w", err)
	}
	return &release, nil
}

// DownloadAsset fetches the named asset from a release into destPath.
// Returns the asset's updated_at, or ok=false if the release has no such
// asset.
func (c *Client) DownloadAsset(ctx context.Context, release *Release, assetName, destPath string) (updatedAt string, ok bool, err error) {
	var target *Asset
	for i := range release.Assets {
		if release.Assets[i].Name == assetName {
			target = &release.Assets[i]
			break
		}
	}
	if target == nil || target.BrowserDownloadURL == "" {
		return "", false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.BrowserDownloadURL, nil)
	if err != nil {
		return "", false, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("download asset %s: %w", assetName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, apiError("download asset", resp)
	}

	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", false, fmt.Errorf("create download dir: %w", err)
		}
	}
	f, err := os.Create(destPath)
	if err != nil {
		return "", false, fmt.Errorf("create %s: %w", destPath, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", false, fmt.Errorf("write %s: %w", destPath, err)
	}
	return target.UpdatedAt, true, nil
}

// DeleteAssetIfExists removes the named asset from a release when present.
func (c *Client) DeleteAssetIfExists(ctx context.Context, release *Release, assetName string) error {
	for _, asset := range release.Assets {
		if asset.Name != assetName {
			continue
		}
		if asset.URL == "" {
			return fmt.Errorf("asset %s has no delete url", assetName)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, asset.URL, nil)
		if err != nil {
			return err
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("delete asset %s: %w", assetName, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			return apiError("delete asset", resp)
		}
		return nil
	}
	return nil
}

// UploadAsset uploads a file as a release asset, replacing any existing
// asset with the same name.
func (c *Client) UploadAsset(ctx context.Context, release *Release, assetName, filePath string) error {
	if err := c.DeleteAssetIfExists(ctx, release, assetName); err != nil {
		return err
	}

	uploadURL := release.UploadURL
	if i := strings.Index(uploadURL, "{"); i >= 0 {
		uploadURL = uploadURL[:i]
	}
	u := fmt.Sprintf("%s?name=%s", uploadURL, url.QueryEscape(assetName))

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", filePath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload asset %s: %w", assetName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return apiError("upload asset", resp)
	}
	return nil
}

func apiError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &GithubError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
