// Package imagesearch finds an illustrative photo for a topic.
package imagesearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"auto_wordpress_article_publisher/upstream"
)

const DefaultBaseURL = "https://api.unsplash.com"

// ErrNoImages is returned when a search yields no results.
var ErrNoImages = errors.New("no matching images found on Unsplash")

// Unsplash searches photos through the Unsplash REST API.
type Unsplash struct {
	baseURL   string
	accessKey string
	client    *http.Client
	logger    *log.Logger
}

type searchResponse struct {
	Total   int `json:"total"`
	Results []struct {
		ID   string `json:"id"`
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

func NewUnsplash(accessKey, baseURL string, client *http.Client, logger *log.Logger) (*Unsplash, error) {
	if accessKey == "" {
		return nil, errors.New("unsplash access key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Unsplash{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accessKey: accessKey,
		client:    client,
		logger:    logger,
	}, nil
}

// Search returns the regular-size URL of the first photo matching query.
func (u *Unsplash) Search(ctx context.Context, query string) (string, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", "1")
	endpoint := u.baseURL + "/search/photos?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Client-ID "+u.accessKey)
	req.Header.Set("Accept-Version", "v1")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("unsplash search: %w", err)
	}
	defer resp.Body.Close()

	if err := upstream.Check("unsplash", resp); err != nil {
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) {
			u.logger.Error("unsplash search failed", "status", apiErr.Status, "body", apiErr.Body)
		}
		return "", err
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode unsplash response: %w", err)
	}
	if len(out.Results) == 0 || out.Results[0].URLs.Regular == "" {
		return "", ErrNoImages
	}
	u.logger.Info("found image", "id", out.Results[0].ID, "url", out.Results[0].URLs.Regular)
	return out.Results[0].URLs.Regular, nil
}
