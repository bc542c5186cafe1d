// Package feeds scrapes configured news sources into articles.
package feeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"genzweekly/internal/core"
	"genzweekly/internal/logger"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
)

const (
	DefaultMaxEntries  = 15
	DefaultMaxAge      = 14 * 24 * time.Hour
	DefaultSourceDelay = 2 * time.Second
	DefaultRetries     = 3
	DefaultRetryDelay  = time.Second
	DefaultUserAgent   = "GenZWeekly/1.0"

	// SummaryLength caps stored summaries.
	SummaryLength = 800
	// WebSummaryLength caps summaries of pages found by link discovery.
	WebSummaryLength = 500
	// MaxDiscoveredLinks bounds how many links a web source contributes.
	MaxDiscoveredLinks = 20

	minTitleLength   = 10
	minSummaryLength = 50
	maxBodyBytes     = 5 << 20
)

// Options configures a Scraper. Zero values take the defaults above.
type Options struct {
	UserAgent        string
	Timeout          time.Duration
	MaxEntries       int
	MaxAge           time.Duration
	SourceDelay      time.Duration
	Retries          int
	RetryDelay       time.Duration
	FetchFullContent bool // Download linked pages when the feed carries no full text
}

// Scraper turns RSS feeds and news pages into articles.
type Scraper struct {
	client *http.Client
	parser *gofeed.Parser
	opts   Options
	now    func() time.Time
	log    *slog.Logger
}

// NewScraper creates a Scraper.
func NewScraper(opts Options) *Scraper {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.SourceDelay < 0 {
		opts.SourceDelay = 0
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	return &Scraper{
		client: &http.Client{Timeout: opts.Timeout},
		parser: gofeed.NewParser(),
		opts:   opts,
		now:    time.Now,
		log:    logger.With("scraper_agent"),
	}
}

// ScrapeCategory scrapes every source of a category, pausing between
// sources. A failing source is logged and skipped.
func (s *Scraper) ScrapeCategory(ctx context.Context, category string, sources []core.Source) ([]core.Article, error) {
	var articles []core.Article

	for i, source := range sources {
		if i > 0 {
			if err := core.Sleep(ctx, s.opts.SourceDelay); err != nil {
				return articles, err
			}
		}

		var found []core.Article
		var err error
		if source.RSS != "" {
			found, err = s.ScrapeRSS(ctx, source, category)
		} else {
			found, err = s.ScrapeWeb(ctx, source.URL, source.Name, category)
		}
		if err != nil {
			if ctx.Err() != nil {
				return articles, ctx.Err()
			}
			s.log.Error("Error scraping source", "source", source.Name, "category", category, "error", err)
			continue
		}
		articles = append(articles, found...)
	}

	return articles, nil
}

// ScrapeRSS reads a source's feed, retrying with exponential backoff. When
// the feed cannot be fetched at all the source's web page is scraped instead.
func (s *Scraper) ScrapeRSS(ctx context.Context, source core.Source, category string) ([]core.Article, error) {
	var feed *gofeed.Feed
	err := core.Retry(ctx, s.opts.Retries, s.opts.RetryDelay, func() error {
		s.log.Debug("Fetching RSS feed", "source", source.Name)
		data, err := s.fetch(ctx, source.RSS)
		if err != nil {
			return err
		}
		parsed, err := s.parser.Parse(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to parse feed: %w", err)
		}
		feed = parsed
		return nil
	})

	switch {
	case err == nil:
		// An empty feed parsed fine; fetching it again will not help.
		if len(feed.Items) == 0 {
			s.log.Warn("No entries found in RSS feed", "source", source.Name)
			return nil, nil
		}
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		fallback := webFallback(source)
		if fallback == "" {
			return nil, err
		}
		s.log.Info("Falling back to web scraping", "source", source.Name, "error", err)
		return s.ScrapeWeb(ctx, fallback, source.Name, category)
	}

	items := feed.Items
	if len(items) > s.opts.MaxEntries {
		items = items[:s.opts.MaxEntries]
	}

	var articles []core.Article
	for _, item := range items {
		a, ok := s.articleFromItem(ctx, item, source.Name, category)
		if !ok {
			continue
		}
		if issues := s.Validate(a); len(issues) > 0 {
			s.log.Debug("Article validation failed", "title", truncate(a.Title, 50), "issues", issues)
			continue
		}
		articles = append(articles, a)
	}

	s.log.Info("Successfully scraped articles", "source", source.Name, "count", len(articles))
	return articles, nil
}

// webFallback picks the page to scrape when a feed fails: the configured URL,
// else the feed's site root.
func webFallback(source core.Source) string {
	if source.URL != "" {
		return source.URL
	}
	u, err := url.Parse(source.RSS)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

func (s *Scraper) articleFromItem(ctx context.Context, item *gofeed.Item, source, category string) (core.Article, bool) {
	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)
	if title == "" || link == "" {
		s.log.Debug("Skipping entry with missing title or URL", "source", source)
		return core.Article{}, false
	}

	full := HTMLToText(item.Content)
	summary := HTMLToText(item.Description)
	image := ItemImage(item)

	if full == "" && s.opts.FetchFullContent {
		if page, err := s.extractPage(ctx, link); err == nil {
			full = page.Text
			if image == "" {
				image = page.Image
			}
		} else {
			s.log.Debug("Could not extract full content", "url", link, "error", err)
		}
	}

	if full != "" && len(full) > len(summary) {
		summary = truncate(full, SummaryLength)
	} else {
		summary = truncate(summary, SummaryLength)
	}

	raw := full
	if raw == "" {
		raw = summary
	}

	return core.Article{
		Title:       title,
		Summary:     summary,
		URL:         link,
		PublishDate: s.itemDate(item),
		Source:      source,
		Category:    category,
		ImageURL:    image,
		RawContent:  raw,
	}, true
}

func (s *Scraper) itemDate(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return *item.PublishedParsed
	case item.UpdatedParsed != nil:
		return *item.UpdatedParsed
	}
	if t, err := dateparse.ParseAny(item.Published); err == nil {
		return t
	}
	return s.now()
}

// ItemImage finds an entry's image in media extensions, the item image or an
// image enclosure.
func ItemImage(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, e := range media[name] {
				if u := e.Attrs["url"]; u != "" {
					return u
				}
			}
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image") {
			return enc.URL
		}
	}
	return ""
}

// Validate returns the reasons an article should not be kept: a short title
// or summary, a non-http URL, or a publish date older than the staleness
// window.
func (s *Scraper) Validate(a core.Article) []string {
	var issues []string
	if len(a.Title) < minTitleLength {
		issues = append(issues, "title_too_short")
	}
	if !strings.HasPrefix(a.URL, "http") {
		issues = append(issues, "invalid_url")
	}
	if len(a.Summary) < minSummaryLength {
		issues = append(issues, "summary_too_short")
	}
	if !a.PublishDate.IsZero() && s.now().Sub(a.PublishDate) > s.opts.MaxAge {
		issues = append(issues, "too_old")
	}
	return issues
}

// ScrapeWeb discovers article links on a news page and extracts each one.
func (s *Scraper) ScrapeWeb(ctx context.Context, pageURL, source, category string) ([]core.Article, error) {
	if pageURL == "" {
		return nil, fmt.Errorf("source %s has no url", source)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url: %w", err)
	}

	data, err := s.fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("web scrape error for %s: %w", source, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	links := discoverLinks(doc, base)
	var articles []core.Article
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return articles, err
		}
		page, err := s.extractPage(ctx, link.href)
		if err != nil {
			s.log.Debug("Skipping discovered link", "url", link.href, "error", err)
			continue
		}

		title := page.Title
		if title == "" {
			title = truncate(link.text, 100)
		}
		summary := page.Excerpt
		if summary == "" {
			summary = page.Text
		}
		published := s.now()
		if page.Published != nil {
			published = *page.Published
		}

		a := core.Article{
			Title:       title,
			Summary:     truncate(summary, WebSummaryLength),
			URL:         link.href,
			PublishDate: published,
			Source:      source,
			Category:    category,
			ImageURL:    page.Image,
			RawContent:  page.Text,
		}
		if issues := s.Validate(a); len(issues) > 0 {
			continue
		}
		articles = append(articles, a)
	}

	s.log.Info("Scraped web source", "source", source, "links", len(links), "count", len(articles))
	return articles, nil
}

type discoveredLink struct {
	href string
	text string
}

func discoverLinks(doc *goquery.Document, base *url.URL) []discoveredLink {
	seen := map[string]bool{base.String(): true}
	var links []discoveredLink

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return true
		}
		key := abs.String()
		if seen[key] {
			return true
		}
		seen[key] = true
		links = append(links, discoveredLink{href: key, text: strings.TrimSpace(sel.Text())})
		return len(links) < MaxDiscoveredLinks
	})
	return links
}

// Page is the readable content of an article page.
type Page struct {
	Title     string
	Text      string
	Excerpt   string
	Image     string
	Published *time.Time
}

func (s *Scraper) extractPage(ctx context.Context, pageURL string) (Page, error) {
	data, err := s.fetch(ctx, pageURL)
	if err != nil {
		return Page{}, err
	}
	return ExtractPage(data, pageURL)
}

// ExtractPage pulls the readable text, lead image and publish date out of an
// HTML document.
func ExtractPage(data []byte, pageURL string) (Page, error) {
	if len(data) == 0 {
		return Page{}, fmt.Errorf("HTML data is empty")
	}
	u, _ := url.Parse(pageURL)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse page: %w", err)
	}
	page := Page{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Image: doc.Find(`meta[property="og:image"]`).AttrOr("content", ""),
	}
	if published := doc.Find(`meta[property="article:published_time"]`).AttrOr("content", ""); published != "" {
		if t, err := dateparse.ParseAny(published); err == nil {
			page.Published = &t
		}
	}

	article, err := readability.FromReader(bytes.NewReader(data), u)
	if err == nil {
		if t := strings.TrimSpace(article.Title); t != "" {
			page.Title = t
		}
		page.Text = collapseSpace(article.TextContent)
		page.Excerpt = collapseSpace(article.Excerpt)
		if page.Image == "" {
			page.Image = article.Image
		}
		if page.Published == nil && article.PublishedTime != nil {
			page.Published = article.PublishedTime
		}
	}
	if page.Text == "" {
		page.Text = collapseSpace(doc.Find("body").Text())
	}
	if page.Text == "" {
		return Page{}, fmt.Errorf("no content extracted from %s", pageURL)
	}
	return page, nil
}

func (s *Scraper) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", target, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", target, err)
	}
	return data, nil
}

// HTMLToText strips markup and collapses whitespace.
func HTMLToText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return collapseSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseSpace(fragment)
	}
	var parts []string
	doc.Find("body").Contents().Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return collapseSpace(strings.Join(parts, " "))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
