package publisher

import (
	"context"
	"errors"
	"fmt"
	"html"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"

	"auto_wordpress_article_publisher/generator"
)

// Publisher uploads the illustration and creates the scheduled post.
type Publisher struct {
	wp     *Client
	logger *log.Logger
	now    func() time.Time
}

// MarkdownParams describes a local Markdown article for the publish command.
type MarkdownParams struct {
	MarkdownPath string
	Title        string
	CoverPath    string
	Excerpt      string
}

func New(wp *Client, logger *log.Logger) (*Publisher, error) {
	if wp == nil {
		return nil, errors.New("wordpress client is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{wp: wp, logger: logger, now: time.Now}, nil
}

// Publish downloads imageURL, uploads it, and creates the post scheduled at at.
// An uploaded image is not removed when post creation fails.
func (p *Publisher) Publish(ctx context.Context, art generator.Article, imageURL string, at time.Time) (Post, error) {
	p.logger.Info("starting WordPress publication", "image", imageURL, "date", at.Format(time.RFC3339))

	img, err := p.wp.DownloadImage(ctx, imageURL)
	if err != nil {
		return Post{}, err
	}

	media, err := p.wp.UploadMedia(ctx, ImageFilename(p.now()), img.ContentType, img.Data)
	if err != nil {
		return Post{}, err
	}
	p.logger.Info("uploaded image", "media_id", media.ID, "source_url", media.SourceURL)

	post, err := p.wp.CreatePost(ctx, PostRequest{
		Title:         art.Title,
		Content:       ImageBlock(media.SourceURL, art.Title) + "\n\n" + art.Content,
		Excerpt:       art.Subtitle,
		FeaturedMedia: media.ID,
		DateGMT:       FormatDateGMT(at),
	})
	if err != nil {
		p.logger.Warn("post creation failed, uploaded image left in media library", "media_id", media.ID)
		return Post{}, err
	}
	p.logger.Info("post created", "id", post.ID, "status", post.Status, "link", post.Link)
	return post, nil
}

// PublishMarkdown converts a local Markdown file, uploads its local images and
// cover, and creates the post scheduled at at.
func (p *Publisher) PublishMarkdown(ctx context.Context, params MarkdownParams, at time.Time) (Post, error) {
	if params.MarkdownPath == "" || params.CoverPath == "" {
		return Post{}, errors.New("markdown path and cover path are required")
	}

	mdBytes, err := os.ReadFile(params.MarkdownPath)
	if err != nil {
		return Post{}, err
	}
	md := string(mdBytes)

	title := params.Title
	if title == "" {
		title = generator.ExtractTitle(md)
	}
	if title == "" {
		return Post{}, errors.New("title is required when the markdown has no level-one heading")
	}
	excerpt := params.Excerpt
	if excerpt == "" {
		excerpt = generator.Digest(md, generator.DefaultLimits().Subtitle)
	}

	mdWithImages, err := p.replaceMarkdownImages(ctx, md, params.MarkdownPath)
	if err != nil {
		return Post{}, err
	}
	p.logger.Debug("processed markdown and uploaded inline images if any")

	contentHTML, err := generator.MarkdownToHTML(mdWithImages)
	if err != nil {
		return Post{}, err
	}

	cover, err := p.uploadFile(ctx, params.CoverPath)
	if err != nil {
		return Post{}, err
	}
	p.logger.Info("uploaded cover image", "path", params.CoverPath, "media_id", cover.ID)

	post, err := p.wp.CreatePost(ctx, PostRequest{
		Title:         title,
		Content:       contentHTML,
		Excerpt:       excerpt,
		FeaturedMedia: cover.ID,
		DateGMT:       FormatDateGMT(at),
	})
	if err != nil {
		return Post{}, err
	}
	p.logger.Info("post created", "id", post.ID, "status", post.Status, "link", post.Link)
	return post, nil
}

func (p *Publisher) uploadFile(ctx context.Context, path string) (Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Media{}, err
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return p.wp.UploadMedia(ctx, filepath.Base(path), ct, data)
}

var mdImageRe = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)

// replaceMarkdownImages uploads local image references and rewrites them to
// the attachment URL. Remote and data URLs are kept.
func (p *Publisher) replaceMarkdownImages(ctx context.Context, md, mdPath string) (string, error) {
	matches := mdImageRe.FindAllStringSubmatchIndex(md, -1)
	if len(matches) == 0 {
		return md, nil
	}

	baseDir := filepath.Dir(mdPath)
	var builder strings.Builder
	last := 0
	for _, match := range matches {
		start, end := match[2], match[3]
		builder.WriteString(md[last:start])
		imgRef := strings.TrimSpace(md[start:end])
		last = end
		if strings.HasPrefix(imgRef, "http://") || strings.HasPrefix(imgRef, "https://") || strings.HasPrefix(imgRef, "data:") {
			builder.WriteString(imgRef)
			continue
		}
		localPath := imgRef
		if !filepath.IsAbs(localPath) {
			if _, statErr := os.Stat(localPath); statErr != nil {
				localPath = filepath.Join(baseDir, imgRef)
			}
		}
		media, err := p.uploadFile(ctx, localPath)
		if err != nil {
			return "", fmt.Errorf("upload inline image %s: %w", imgRef, err)
		}
		builder.WriteString(media.SourceURL)
	}
	builder.WriteString(md[last:])
	return builder.String(), nil
}

// ImageFilename names an uploaded illustration after the upload time.
func ImageFilename(t time.Time) string {
	return "article-image-" + t.Format("20060102-150405") + ".jpg"
}

// FormatDateGMT renders at in UTC without offset, the form WordPress stores.
func FormatDateGMT(at time.Time) string {
	return at.UTC().Format("2006-01-02T15:04:05")
}

// ImageBlock is a block-editor image figure. alt is reduced to plain text.
func ImageBlock(src, alt string) string {
	return `<figure class="wp-block-image"><img src="` + html.EscapeString(src) + `" alt="` + html.EscapeString(PlainText(alt)) + `"/></figure>`
}

// PlainText strips markup from s.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}
