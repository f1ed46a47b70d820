package parser

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/scanner"
)

const (
	defaultItemSelector  = "article, [class*=news], [class*=update], [class*=announcement]"
	defaultTitleSelector = "h1, h2, h3, h4, a"
	defaultHTMLLimit     = 10
)

// HTMLScanner crawls listing pages and yields one fragment per news item.
type HTMLScanner struct {
	timeout time.Duration
	now     func() time.Time
}

// NewHTMLScanner creates a scanner whose requests time out after timeout.
func NewHTMLScanner(timeout time.Duration) *HTMLScanner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTMLScanner{timeout: timeout, now: time.Now}
}

// Name identifies the strategy inside the registry.
func (s *HTMLScanner) Name() string {
	return "html"
}

// Scan visits each endpoint. Options: "items" and "title" override the CSS
// selectors, "limit" caps items per endpoint.
func (s *HTMLScanner) Scan(ctx context.Context, req scanner.Request) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		for _, ep := range req.Endpoints {
			pages, err := s.scrape(ctx, req, ep)
			if err != nil {
				yield(nil, &domain.FetchError{SourceID: req.SourceID, Endpoint: ep.Name, Err: err})
				return
			}
			for _, page := range pages {
				if !yield(page, nil) {
					return
				}
			}
		}
	}
}

func (s *HTMLScanner) scrape(ctx context.Context, req scanner.Request, ep scanner.Endpoint) ([]domain.HTMLPage, error) {
	var (
		itemSel  = req.Option("items", defaultItemSelector)
		titleSel = req.Option("title", defaultTitleSelector)
		limit    = req.IntOption("limit", defaultHTMLLimit)
		pages    []domain.HTMLPage
		seen     = map[string]struct{}{}
		fetched  = s.now().UTC()
	)

	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnHTML(itemSel, func(e *colly.HTMLElement) {
		if len(pages) >= limit {
			return
		}
		// containers of other items are skipped; their children are visited
		if e.DOM.Find(itemSel).Length() > 0 {
			return
		}
		title := strings.TrimSpace(e.DOM.Find(titleSel).First().Text())
		if title == "" {
			return
		}

		link := ""
		if href, ok := e.DOM.Find("a[href]").First().Attr("href"); ok {
			link = e.Request.AbsoluteURL(href)
		}

		key := link
		if key == "" {
			key = title
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}

		fragment, err := goquery.OuterHtml(e.DOM)
		if err != nil {
			return
		}

		pages = append(pages, domain.HTMLPage{
			SourceID:  req.SourceID,
			URL:       link,
			Title:     title,
			HTML:      fragment,
			Published: publishedOf(e.DOM),
			FetchedAt: fetched,
		})
	})

	if err := c.Visit(ep.URL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", ep.URL, err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return pages, nil
}

func publishedOf(sel *goquery.Selection) string {
	t := sel.Find("time").First()
	if dt, ok := t.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
		return strings.TrimSpace(dt)
	}
	return strings.TrimSpace(t.Text())
}
