package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://noembed.com"
	defaultTimeout = 5 * time.Second
)

var ErrLookup = errors.New("metadata lookup failed")

type (
	Config struct {
		Logger  *zerolog.Logger
		BaseURL string
		Timeout time.Duration
	}

	// Resolver fetches a human readable title for a submitted media URL.
	// Lookups are best effort: the caller keeps its placeholder title on
	// any failure, and an absent title is not an error.
	Resolver struct {
		logger  zerolog.Logger
		client  *http.Client
		baseURL string
	}
)

func NewResolver(cfg Config) *Resolver {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Resolver{
		logger:  cfg.Logger.With().Str("component", "metadata").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Title resolves the title for videoURL. An empty title with nil error means
// the provider had nothing for this URL.
func (r *Resolver) Title(ctx context.Context, videoURL string) (string, error) {
	endpoint := fmt.Sprintf("%s/embed?url=%s", r.baseURL, url.QueryEscape(videoURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", errors.Join(ErrLookup, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", errors.Join(ErrLookup, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrLookup, resp.StatusCode)
	}

	var body struct {
		Title string `json:"title"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Join(ErrLookup, err)
	}

	r.logger.Debug().Str("url", videoURL).Str("title", body.Title).Msg("title resolved")
	return body.Title, nil
}
