package datasource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/seenimoa/niftypulse/pkg/models"
)

// NewsFeed is one RSS or Atom feed of Indian market news.
type NewsFeed struct {
	Name string `json:"name" mapstructure:"name" yaml:"name"`
	URL  string `json:"url"  mapstructure:"url"  yaml:"url"`
}

// DefaultNewsFeeds lists the market report feeds polled for headlines.
var DefaultNewsFeeds = []NewsFeed{
	{Name: "Moneycontrol", URL: "https://www.moneycontrol.com/rss/marketreports.xml"},
	{Name: "Economic Times Markets", URL: "https://economictimes.indiatimes.com/markets/rssfeeds/1977021501.cms"},
	{Name: "LiveMint Markets", URL: "https://www.livemint.com/rss/markets"},
	{Name: "Business Standard Markets", URL: "https://www.business-standard.com/rss/markets-106.rss"},
}

// News fetches market headlines from RSS/Atom feeds.
type News struct {
	http  HTTPGetter
	feeds []NewsFeed
	sourceOptions
}

// NewNews creates a headline source. An empty feed list falls back to
// DefaultNewsFeeds.
func NewNews(getter HTTPGetter, feeds []NewsFeed, opts ...Option) *News {
	if len(feeds) == 0 {
		feeds = DefaultNewsFeeds
	}
	return &News{
		http:          getter,
		feeds:         feeds,
		sourceOptions: buildOptions(opts),
	}
}

// Name returns the data source name.
func (n *News) Name() string { return "Indian News" }

// FetchHeadlines returns up to limit headlines from all feeds, newest first.
// A limit <= 0 returns everything. Failing feeds are skipped; the call only
// fails when every feed fails.
func (n *News) FetchHeadlines(ctx context.Context, limit int) Result[[]models.Headline] {
	const op = "headlines"
	res := n.fetchHeadlines(ctx, limit)
	n.logOutcome(op, res.Status, res.Err,
		zap.Int("feeds", len(n.feeds)),
		zap.Int("headlines", len(res.Data)),
	)
	n.record(op, res.Status)
	return res
}

func (n *News) fetchHeadlines(ctx context.Context, limit int) Result[[]models.Headline] {
	empty := []models.Headline{}

	var (
		all         []models.Headline
		errs        []error
		parseErrors int
	)
	for _, feed := range n.feeds {
		items, err := n.fetchFeed(ctx, feed)
		if err != nil {
			n.logger.Warn("news feed failed", zap.String("feed", feed.Name), zap.String("url", feed.URL), zap.Error(err))
			errs = append(errs, err)
			if errors.Is(err, ErrMalformed) {
				parseErrors++
			}
			continue
		}
		all = append(all, items...)
	}

	if len(errs) == len(n.feeds) {
		err := fmt.Errorf("news: all %d feeds failed: %w", len(n.feeds), errors.Join(errs...))
		if parseErrors == len(errs) {
			return parseFailed(empty, err)
		}
		return transportFailed(empty, err)
	}
	if len(all) == 0 {
		return emptied(empty, fmt.Errorf("news: %w", ErrNoData))
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Published.After(all[j].Published) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return succeeded(all)
}

func (n *News) fetchFeed(ctx context.Context, feed NewsFeed) ([]models.Headline, error) {
	body, err := n.http.Get(ctx, feed.URL, map[string]string{
		"Accept": "application/rss+xml, application/atom+xml, application/xml, text/xml",
	})
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", feed.Name, err)
	}

	// gofeed.Parser is not safe for concurrent use; one per call.
	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w: %v", feed.Name, ErrMalformed, err)
	}

	items := make([]models.Headline, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		h := models.Headline{
			Title:  title,
			Source: feed.Name,
			URL:    item.Link,
		}
		switch {
		case item.PublishedParsed != nil:
			h.Published = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			h.Published = *item.UpdatedParsed
		}
		items = append(items, h)
	}
	return items, nil
}
