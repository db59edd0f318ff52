package tiles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jobrunner/regiond/internal/domain"
)

// maxTileSize bounds the body read for a single tile.
const maxTileSize = 8 << 20

// HTTPSource fetches tiles from an HTTP(S) tile server.
type HTTPSource struct {
	client      *http.Client
	baseURL     string
	username    string
	password    string
	accessToken string
}

// HTTPConfig holds HTTP tile source configuration.
type HTTPConfig struct {
	BaseURL     string
	Timeout     time.Duration
	Username    string
	Password    string
	AccessToken string // Sent as the access_token query parameter
}

// NewHTTPSource creates a new HTTP tile source.
func NewHTTPSource(cfg HTTPConfig) *HTTPSource {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &HTTPSource{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		username:    cfg.Username,
		password:    cfg.Password,
		accessToken: cfg.AccessToken,
	}
}

// Fetch downloads the tile at key. 404 and 204 responses mean the tile does
// not exist.
func (s *HTTPSource) Fetch(ctx context.Context, key string) ([]byte, error) {
	tileURL := s.baseURL + "/" + cleanKey(key)
	if s.accessToken != "" {
		tileURL += "?access_token=" + url.QueryEscape(s.accessToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tileURL, nil)
	if err != nil {
		return nil, err
	}

	if s.username != "" && s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		return nil, fmt.Errorf("%w: %s", domain.ErrTileNotFound, key)
	default:
		return nil, fmt.Errorf("tile server returned status %d for %s", resp.StatusCode, key)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if len(data) > maxTileSize {
		return nil, fmt.Errorf("tile %s exceeds %d bytes", key, maxTileSize)
	}
	return data, nil
}

// Name returns the source name.
func (s *HTTPSource) Name() string {
	return "http:" + s.baseURL
}
