// Package crawl extracts the latest article from configured sources using
// CSS selectors.
package crawl

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quillworks/quill/internal/model"
)

// Selector fallbacks for sources that configure none.
const (
	defaultArticleSelector = "article, .post, .entry, .article-item"
	defaultTitleSelector   = "h1, h2, h3, .title, .headline, .post-title"
	defaultURLSelector     = "a[href]"
	defaultSummarySelector = "p, .summary, .excerpt, .description"
	defaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Option configures the Crawler.
type Option func(*Crawler)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Crawler) {
		c.http = hc
	}
}

// Crawler fetches source landing pages and pulls out the first article.
type Crawler struct {
	http *http.Client
}

// New creates a Crawler.
func New(opts ...Option) *Crawler {
	c := &Crawler{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl fetches the source's page and extracts its first article. A nil
// article with nil error never happens: extraction failures are errors so
// callers can move on to the next source.
func (c *Crawler) Crawl(ctx context.Context, source model.Source) (*model.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, source.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.BaseURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: create request for %s", source.Name)
	}
	ua := source.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: fetch %s", source.Name)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("crawl: %s returned status %d", source.Name, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: parse %s", source.Name)
	}

	articleSel := source.Selectors.Article
	if articleSel == "" {
		articleSel = defaultArticleSelector
	}
	node := doc.Find(articleSel).First()
	if node.Length() == 0 {
		return nil, eris.Errorf("crawl: no article matched on %s", source.Name)
	}

	title := extractTitle(node, doc, source)
	if strings.TrimSpace(title) == "" {
		return nil, eris.Errorf("crawl: no title extracted on %s", source.Name)
	}

	article := model.Article{
		Title:        strings.TrimSpace(title),
		URL:          extractURL(node, source),
		Summary:      model.TruncateSummary(extractSummary(node, source)),
		Source:       source.Name,
		DiscoveredAt: time.Now().UTC(),
	}
	if !article.Valid() {
		return nil, eris.Errorf("crawl: article from %s failed validation", source.Name)
	}

	zap.L().Info("crawled article",
		zap.String("source", source.Name),
		zap.String("title", article.Title))
	return &article, nil
}

// CrawlFirst tries sources in order and returns the first article found.
// Each failure is logged and the next source tried; (nil, nil) means no
// source yielded an article.
func (c *Crawler) CrawlFirst(ctx context.Context, sources []model.Source) (*model.Article, error) {
	for _, source := range sources {
		article, err := c.Crawl(ctx, source)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			zap.L().Warn("source crawl failed, trying next",
				zap.String("source", source.Name),
				zap.Error(err))
			continue
		}
		return article, nil
	}
	return nil, nil
}

// CrawlAll crawls every source, collecting one article per viable source.
func (c *Crawler) CrawlAll(ctx context.Context, sources []model.Source) []model.Article {
	var articles []model.Article
	for _, source := range sources {
		article, err := c.Crawl(ctx, source)
		if err != nil {
			zap.L().Warn("source crawl failed, skipping",
				zap.String("source", source.Name),
				zap.Error(err))
			continue
		}
		articles = append(articles, *article)
	}
	return articles
}

func extractTitle(node *goquery.Selection, doc *goquery.Document, source model.Source) string {
	sel := source.Selectors.Title
	if sel == "" {
		sel = defaultTitleSelector
	}
	title := node.Find(sel).First().Text()
	if strings.TrimSpace(title) == "" {
		// Page-level fallback for sources whose article node has no heading.
		title = doc.Find("h1, title").First().Text()
	}
	return title
}

func extractURL(node *goquery.Selection, source model.Source) string {
	sel := source.Selectors.URL
	if sel == "" {
		sel = defaultURLSelector
	}
	href, ok := node.Find(sel).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return source.BaseURL
	}

	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return source.BaseURL
	}
	base, err := url.Parse(source.BaseURL)
	if err != nil {
		return source.BaseURL
	}
	return base.ResolveReference(ref).String()
}

func extractSummary(node *goquery.Selection, source model.Source) string {
	sel := source.Selectors.Summary
	if sel == "" {
		sel = defaultSummarySelector
	}
	return strings.TrimSpace(node.Find(sel).First().Text())
}
