package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/xhad/tutor/internal/models"
)

type CrawlerConfig struct {
	BaseURL           string
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
}

// Crawler fetches course pages below a base URL, staying on its host.
type Crawler struct {
	config   CrawlerConfig
	client   *http.Client
	visited  map[string]bool
	limiter  *rate.Limiter
	baseHost string
}

func NewCrawler(config CrawlerConfig) (*Crawler, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth < 0 {
		config.MaxDepth = 0
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", config.BaseURL)
	}

	return &Crawler{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		visited:  make(map[string]bool),
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
	}, nil
}

func (c *Crawler) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if parsedURL.Host != c.baseHost {
		return false
	}

	path := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, ext := range c.config.AllowedExtensions {
		if strings.HasSuffix(path, ext) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range c.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}
	return true
}

// Crawl returns one document per visited page. Pages that fail after the
// first one are logged and skipped.
func (c *Crawler) Crawl(ctx context.Context, classID string) ([]models.Document, error) {
	var documents []models.Document
	err := c.crawl(ctx, classID, c.config.BaseURL, 0, &documents)
	return documents, err
}

func (c *Crawler) crawl(ctx context.Context, classID, urlStr string, depth int, documents *[]models.Document) error {
	if depth > c.config.MaxDepth || c.visited[urlStr] {
		return nil
	}
	if !c.shouldProcessURL(urlStr) {
		return nil
	}

	c.visited[urlStr] = true
	if c.config.OnProgress != nil {
		c.config.OnProgress(urlStr)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	page, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return err
	}

	doc := documentFromHTML(page, SourceID(urlStr), classID)
	doc.Metadata["url"] = urlStr
	doc.Metadata["depth"] = depth
	doc.Metadata["contentType"] = resp.Header.Get("Content-Type")
	doc.Metadata["lastModified"] = resp.Header.Get("Last-Modified")
	*documents = append(*documents, doc)

	if depth == c.config.MaxDepth {
		return nil
	}

	base, err := url.Parse(urlStr)
	if err != nil {
		return nil
	}
	page.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			log.Debug().Err(err).Str("href", href).Msg("skipping unparsable link")
			return
		}
		next := base.ResolveReference(ref)
		next.Fragment = ""
		if err := c.crawl(ctx, classID, next.String(), depth+1, documents); err != nil {
			log.Warn().Err(err).Str("url", next.String()).Msg("failed to fetch course page")
		}
	})

	return nil
}

// HTML extracts the main text of one HTML document.
func HTML(r io.Reader, sourceID, classID string) (models.Document, error) {
	page, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to parse HTML %s: %w", sourceID, err)
	}
	return documentFromHTML(page, sourceID, classID), nil
}

func documentFromHTML(page *goquery.Document, sourceID, classID string) models.Document {
	title := strings.TrimSpace(page.Find("title").First().Text())
	if title == "" {
		title = sourceID
	}
	return models.Document{
		ID:      sourceID,
		ClassID: classID,
		Title:   title,
		Pages:   []models.Page{{Number: 1, Text: extractMainContent(page)}},
		Metadata: map[string]interface{}{
			"type": "html",
		},
	}
}

var noisePatterns = []string{
	"Política de cookies",
	"Aceptar cookies",
	"Política de privacidad",
	"Cookie Policy",
	"Accept Cookies",
	"Privacy Policy",
}

func cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}
	return strings.Join(strings.Fields(content), " ")
}

func extractMainContent(page *goquery.Document) string {
	page.Find("script, style, nav, footer, noscript").Remove()

	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".course-content",
		"#course",
	}

	var content string
	for _, selector := range selectors {
		if selected := page.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if strings.TrimSpace(content) == "" {
		content = page.Find("body").Text()
	}

	return cleanContent(content)
}
