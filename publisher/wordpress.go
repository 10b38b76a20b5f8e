package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"auto_wordpress_article_publisher/upstream"
)

const (
	apiPath = "/wp-json/wp/v2"

	defaultPageSize     = 100
	defaultImageTimeout = 10 * time.Second
	defaultMaxImage     = 20 << 20
)

// Config holds the WordPress site and credentials.
type Config struct {
	SiteURL string
	// Token is sent as a Bearer token unless Username is set, in which case
	// it is treated as an application password for Basic auth.
	Token        string
	Username     string
	Status       string
	Categories   []int
	PageSize     int
	ImageTimeout time.Duration
	// MaxImageBytes caps a downloaded illustration. Larger images are rejected.
	MaxImageBytes int64
}

// Media is an uploaded attachment.
type Media struct {
	ID        int    `json:"id"`
	SourceURL string `json:"source_url"`
}

// Post is the subset of a created post the bot reports back.
type Post struct {
	ID      int    `json:"id"`
	Link    string `json:"link"`
	Status  string `json:"status"`
	DateGMT string `json:"date_gmt"`
}

// PostRequest is the body of POST /posts.
type PostRequest struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	Excerpt       string `json:"excerpt,omitempty"`
	Status        string `json:"status"`
	FeaturedMedia int    `json:"featured_media,omitempty"`
	Categories    []int  `json:"categories,omitempty"`
	DateGMT       string `json:"date_gmt,omitempty"`
}

// Image is a downloaded picture.
type Image struct {
	Data        []byte
	ContentType string
}

// Client talks to the WordPress REST API.
type Client struct {
	cfg    Config
	base   string
	client *http.Client
	logger *log.Logger
}

func NewClient(cfg Config, client *http.Client, logger *log.Logger) (*Client, error) {
	if cfg.SiteURL == "" || cfg.Token == "" {
		return nil, errors.New("wordpress site url and token are required")
	}
	if _, err := url.ParseRequestURI(cfg.SiteURL); err != nil {
		return nil, fmt.Errorf("invalid wordpress site url: %w", err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = defaultImageTimeout
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultMaxImage
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		cfg:    cfg,
		base:   strings.TrimRight(cfg.SiteURL, "/") + apiPath,
		client: client,
		logger: logger,
	}, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Token)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
}

// do sends req and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, op string, out any) error {
	c.authorize(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("wordpress %s: %w", op, err)
	}
	defer resp.Body.Close()

	if err := upstream.Check("wordpress", resp); err != nil {
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) {
			c.logger.Error("wordpress request failed", "op", op, "status", apiErr.Status, "body", apiErr.Body)
		}
		return fmt.Errorf("wordpress %s: %w", op, err)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode wordpress %s response: %w", op, err)
	}
	return nil
}

// DownloadImage fetches the picture at imageURL.
func (c *Client) DownloadImage(ctx context.Context, imageURL string) (Image, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ImageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return Image{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if err := upstream.Check("image host", resp); err != nil {
		return Image{}, fmt.Errorf("download image: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > c.cfg.MaxImageBytes {
		return Image{}, fmt.Errorf("download image: larger than %d bytes", c.cfg.MaxImageBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err != nil || !strings.HasPrefix(mt, "image/") {
		ct = http.DetectContentType(data)
	}
	return Image{Data: data, ContentType: ct}, nil
}

// UploadMedia stores data as a new attachment. The body is the raw file.
func (c *Client) UploadMedia(ctx context.Context, filename, contentType string, data []byte) (Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/media", bytes.NewReader(data))
	if err != nil {
		return Media{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))

	var m Media
	if err := c.do(req, "upload media", &m); err != nil {
		return Media{}, err
	}
	if m.ID == 0 || m.SourceURL == "" {
		return Media{}, errors.New("wordpress upload media: response without id or source_url")
	}
	return m, nil
}

// CreatePost creates a post. Status and categories default to the client config.
func (c *Client) CreatePost(ctx context.Context, p PostRequest) (Post, error) {
	if p.Status == "" {
		p.Status = c.cfg.Status
	}
	if p.Categories == nil {
		p.Categories = c.cfg.Categories
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Post{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/posts", bytes.NewReader(body))
	if err != nil {
		return Post{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var post Post
	if err := c.do(req, "create post", &post); err != nil {
		return Post{}, err
	}
	return post, nil
}

// ListScheduled returns the stored UTC date of every post in "future" status,
// bounded to one page. Items that cannot be decoded are returned verbatim so
// the caller can report them as unparseable.
func (c *Client) ListScheduled(ctx context.Context) ([]string, error) {
	q := url.Values{}
	q.Set("status", "future")
	q.Set("per_page", strconv.Itoa(c.cfg.PageSize))
	q.Set("_fields", "id,date_gmt")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/posts?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := c.do(req, "list scheduled posts", &items); err != nil {
		return nil, err
	}

	dates := make([]string, 0, len(items))
	for _, raw := range items {
		var item struct {
			DateGMT string `json:"date_gmt"`
		}
		if err := json.Unmarshal(raw, &item); err != nil || item.DateGMT == "" {
			dates = append(dates, string(raw))
			continue
		}
		dates = append(dates, item.DateGMT)
	}
	c.logger.Debug("listed scheduled posts", "count", len(dates))
	return dates, nil
}
