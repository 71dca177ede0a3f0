package textage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the public Textage score table endpoint.
const DefaultBaseURL = "https://textage.cc/score/"

// Document is one raw source table as fetched, before decoding.
type Document struct {
	Name        string
	Body        []byte
	ContentType string
}

// SHA256 returns the hex digest of the raw document bytes.
func (d *Document) SHA256() string {
	sum := sha256.Sum256(d.Body)
	return hex.EncodeToString(sum[:])
}

// Sources bundles the three raw tables from one fetch cycle.
type Sources struct {
	Title Document
	Data  Document
	Act   Document
}

// Hashes returns document name to hex SHA-256, the shape recorded in the
// published manifest and used for the unchanged-source short circuit.
func (s *Sources) Hashes() map[string]string {
	return map[string]string{
		SourceTitleTbl: s.Title.SHA256(),
		SourceDataTbl:  s.Data.SHA256(),
		SourceActTbl:   s.Act.SHA256(),
	}
}

// Client fetches Textage score tables over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the given base URL. An empty baseURL means
// the public Textage endpoint.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchSources retrieves the three score tables. The fetches are read-only
// and order-independent; they are issued sequentially for simplicity.
func (c *Client) FetchSources(ctx context.Context) (*Sources, error) {
	title, err := c.fetch(ctx, SourceTitleTbl)
	if err != nil {
		return nil, err
	}
	data, err := c.fetch(ctx, SourceDataTbl)
	if err != nil {
		return nil, err
	}
	act, err := c.fetch(ctx, SourceActTbl)
	if err != nil {
		return nil, err
	}
	return &Sources{Title: *title, Data: *data, Act: *act}, nil
}

func (c *Client) fetch(ctx context.Context, name string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+name, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", name, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	return &Document{
		Name:        name,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// Parse decodes and parses raw sources into Tables, recording the raw-byte
// digests alongside.
func Parse(src *Sources) (*Tables, error) {
	titleText, _ := DecodeDocument(src.Title.Body, src.Title.ContentType)
	dataText, _ := DecodeDocument(src.Data.Body, src.Data.ContentType)
	actText, _ := DecodeDocument(src.Act.Body, src.Act.ContentType)

	title, err := ExtractTable(titleText, "titletbl")
	if err != nil {
		return nil, err
	}
	data, err := ExtractTable(dataText, "datatbl")
	if err != nil {
		return nil, err
	}
	act, err := ExtractTable(actText, "actbl")
	if err != nil {
		return nil, err
	}

	return &Tables{
		Title:        title,
		Data:         data,
		Act:          act,
		SourceHashes: src.Hashes(),
	}, nil
}
