package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"news-forecaster/internal/api"
	"news-forecaster/internal/interfaces"
	"news-forecaster/internal/logger"
	"news-forecaster/internal/runlog"
	"news-forecaster/internal/types"
)

var (
	ErrPaywalled   = errors.New("paywalled article")
	ErrNoBody      = errors.New("article body not found")
	ErrUnsupported = errors.New("unsupported source")
)

// Site describes how to pull article text out of one publisher's pages.
type Site struct {
	Host    string
	Body    string // selector of the element holding the article paragraphs
	Paywall string // selector present only on paywalled pages
	Cutoff  string // text after this marker is dropped
}

// DefaultSites are the publishers the Yahoo Finance feed links to that serve readable HTML.
func DefaultSites() []Site {
	return []Site{
		{Host: "finance.yahoo.com", Body: "div.article-wrap div.body, div.body", Paywall: "div.upsell-content"},
		{Host: "investors.com", Body: "div.single-post-content", Cutoff: "YOU MAY ALSO LIKE"},
	}
}

type Options struct {
	UserAgent string
	Sites     []Site
	Retry     *api.RetryConfig
	Failures  *runlog.Log
}

// Scraper fills the article backlog from an RSS index.
type Scraper struct {
	feedURL string
	sink    interfaces.ArticleSink
	client  *api.Client
	opts    Options
	sites   map[string]Site
}

type feedItem struct {
	Link      string
	Title     string
	Published string
	Source    string
}

// Result counts what one Run did.
type Result struct {
	Seen     int
	Skipped  int
	Inserted int
	Failed   int
}

func New(feedURL string, sink interfaces.ArticleSink, opts Options) *Scraper {
	if len(opts.Sites) == 0 {
		opts.Sites = DefaultSites()
	}
	headers := api.BrowserHeaders()
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}
	s := &Scraper{
		feedURL: feedURL,
		sink:    sink,
		client:  api.NewClient(api.WithHeaders(headers), api.WithTimeout(30*time.Second), api.WithLogging(true)),
		opts:    opts,
		sites:   make(map[string]Site, len(opts.Sites)),
	}
	for _, site := range opts.Sites {
		s.sites[site.Host] = site
	}
	return s
}

// Run reads the feed once and stores every new, readable article at priority 0.
func (s *Scraper) Run(ctx context.Context) (Result, error) {
	op := logger.StartOperation(ctx, "scraper.Run", "feed", s.feedURL)
	ctx = op.GetContext()

	var res Result
	known, err := s.sink.KnownLinks(ctx)
	if err != nil {
		op.EndWithError(err)
		return res, err
	}

	items, err := s.readFeed(ctx)
	if err != nil {
		op.EndWithError(err)
		return res, err
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		res.Seen++
		if _, ok := known[item.Link]; ok || strings.Contains(item.Link, "/research/reports/") {
			res.Skipped++
			continue
		}

		content, err := s.fetchArticle(ctx, item.Link)
		if err != nil {
			res.Failed++
			s.recordFailure(ctx, item.Link, err)
			continue
		}

		a := &types.Article{
			Priority:  0,
			Link:      item.Link,
			Title:     strings.TrimSpace(item.Title),
			Published: parsePublished(item.Published),
			Source:    item.Source,
			Content:   content,
		}
		inserted, err := s.sink.InsertArticle(ctx, a)
		if err != nil {
			res.Failed++
			s.recordFailure(ctx, item.Link, err)
			continue
		}
		if inserted {
			res.Inserted++
			known[item.Link] = struct{}{}
			logger.Info(ctx, "Article stored", "article_id", a.ID, "link", a.Link)
		} else {
			res.Skipped++
		}
	}

	op.End("seen", res.Seen, "inserted", res.Inserted, "failed", res.Failed)
	return res, nil
}

func (s *Scraper) readFeed(ctx context.Context) ([]feedItem, error) {
	var (
		items    []feedItem
		visitErr error
	)

	c := colly.NewCollector()
	c.SetRequestTimeout(30 * time.Second)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range api.BrowserHeaders() {
			r.Headers.Set(k, v)
		}
		if s.opts.UserAgent != "" {
			r.Headers.Set("User-Agent", s.opts.UserAgent)
		}
	})

	c.OnXML("//item", func(e *colly.XMLElement) {
		link := strings.TrimSpace(e.ChildText("link"))
		if link == "" {
			return
		}
		source := strings.TrimSpace(e.ChildText("source"))
		if source == "" {
			source = "Yahoo News"
		}
		items = append(items, feedItem{
			Link:      link,
			Title:     e.ChildText("title"),
			Published: e.ChildText("pubDate"),
			Source:    source,
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("feed returned %d: %w", r.StatusCode, err)
	})

	if err := c.Visit(s.feedURL); err != nil {
		if visitErr != nil {
			return nil, visitErr
		}
		return nil, fmt.Errorf("failed to visit %s: %w", s.feedURL, err)
	}
	c.Wait()
	if visitErr != nil {
		return nil, visitErr
	}

	logger.Debug(ctx, "Feed read", "items", len(items))
	return items, nil
}

func (s *Scraper) fetchArticle(ctx context.Context, link string) (string, error) {
	site, err := s.siteFor(link)
	if err != nil {
		return "", err
	}

	req := api.NewRequest("GET", link).WithContext(ctx)
	resp, err := s.client.DoWithRetry(req, s.opts.Retry)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("parse article page: %w", err)
	}
	return extractText(doc, site)
}

func (s *Scraper) siteFor(link string) (Site, error) {
	u, err := url.Parse(link)
	if err != nil {
		return Site{}, err
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	site, ok := s.sites[host]
	if !ok {
		return Site{}, fmt.Errorf("%w: %s", ErrUnsupported, host)
	}
	return site, nil
}

func extractText(doc *goquery.Document, site Site) (string, error) {
	body := doc.Find(site.Body).First()
	if body.Length() == 0 {
		if site.Paywall != "" && doc.Find(site.Paywall).Length() > 0 {
			return "", ErrPaywalled
		}
		return "", ErrNoBody
	}

	var paragraphs []string
	body.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := strings.TrimSpace(p.Text()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	})
	text := strings.Join(paragraphs, "\n")
	if site.Cutoff != "" {
		if i := strings.Index(text, site.Cutoff); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
	}
	if text == "" {
		return "", ErrNoBody
	}
	return text, nil
}

func parsePublished(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

func (s *Scraper) recordFailure(ctx context.Context, link string, err error) {
	logger.Warn(ctx, "Article not scraped", "link", link, "error", err)
	if s.opts.Failures == nil {
		return
	}
	if werr := s.opts.Failures.Append(runlog.Entry{Phase: "scrape", Link: link, State: "ScrapeFailed", Reason: err.Error()}); werr != nil {
		logger.ErrorWithErr(ctx, "Failed to write failure log", werr)
	}
}
