package ingest

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

// NewsConfig configures a NewsSource.
type NewsConfig struct {
	// FeedURL is an RSS 2.0 feed, typically a news search for the account.
	FeedURL   string
	Limit     int
	Lookback  time.Duration
	UserAgent string
	Timeout   time.Duration
}

// NewsSource reads account news from an RSS feed.
type NewsSource struct {
	cfg    NewsConfig
	http   *httpFetcher
	logger *slog.Logger
	now    func() time.Time
}

// NewNewsSource creates a news source.
func NewNewsSource(cfg NewsConfig, logger *slog.Logger) *NewsSource {
	if cfg.Limit <= 0 {
		cfg.Limit = 20
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 7 * 24 * time.Hour
	}
	return &NewsSource{
		cfg:    cfg,
		http:   newHTTPFetcher(cfg.Timeout, 0, cfg.UserAgent),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Name implements Source.
func (s *NewsSource) Name() string { return "news" }

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
	Source  string `xml:"source"`
}

// NewsItem is one parsed feed entry.
type NewsItem struct {
	Title     string
	URL       string
	Source    string
	Published time.Time
}

var pubDateLayouts = []string{time.RFC1123, time.RFC1123Z, time.RFC822, time.RFC822Z, time.RFC3339}

// ParseFeed decodes an RSS document and returns at most limit items
// published at or after cutoff. Items with unparseable dates count as
// published now.
func ParseFeed(body []byte, cutoff, now time.Time, limit int) ([]NewsItem, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}

	items := feed.Channel.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	var out []NewsItem
	for _, it := range items {
		published := now
		for _, layout := range pubDateLayouts {
			if ts, err := time.Parse(layout, strings.TrimSpace(it.PubDate)); err == nil {
				published = ts.UTC()
				break
			}
		}
		if published.Before(cutoff) {
			continue
		}
		title := strings.TrimSpace(it.Title)
		if title == "" {
			title = "Unknown"
		}
		src := strings.TrimSpace(it.Source)
		if src == "" {
			src = "News"
		}
		out = append(out, NewsItem{
			Title:     title,
			URL:       strings.TrimSpace(it.Link),
			Source:    src,
			Published: published,
		})
	}
	return out, nil
}

// Fetch implements Source.
func (s *NewsSource) Fetch(ctx context.Context, since time.Time) (Batch, error) {
	if s.cfg.FeedURL == "" {
		return Batch{}, fmt.Errorf("news: no feed url configured")
	}
	now := s.now()
	cutoff := since
	if cutoff.IsZero() {
		cutoff = now.Add(-s.cfg.Lookback)
	}

	body, err := s.http.get(ctx, s.cfg.FeedURL)
	if err != nil {
		return Batch{}, fmt.Errorf("fetching news: %w", err)
	}
	items, err := ParseFeed(body, cutoff, now, s.cfg.Limit)
	if err != nil {
		return Batch{}, err
	}
	s.logger.Info("news fetched", "items", len(items))

	entities := make([]models.Entity, 0, len(items))
	for i := range items {
		entities = append(entities, normalizeNews(&items[i]))
	}
	return Batch{Items: len(items), Entities: entities}, nil
}

// NewsEventType classifies a headline by keywords.
func NewsEventType(title string) string {
	t := strings.ToLower(title)
	switch {
	case containsAny(t, "merger", "acquisition", "acquires", "m&a"):
		return "M&A"
	case containsAny(t, "ceo", "cfo", "executive", "appoint", "resign"):
		return "Executive Change"
	case containsAny(t, "earnings", "revenue", "profit", "loss"):
		return "Financial Results"
	case containsAny(t, "partnership", "partner", "collaboration"):
		return "Partnership Announcement"
	default:
		return "News Article"
	}
}

func newsSignificance(eventType string) string {
	switch eventType {
	case "M&A", "Executive Change":
		return "High"
	case "Financial Results", "Partnership Announcement":
		return "Medium"
	default:
		return "Low"
	}
}

func normalizeNews(it *NewsItem) models.Entity {
	eventType := NewsEventType(it.Title)
	return NewEntity(models.EntityTypeExternalEvent, models.Fields{
		"title":          it.Title,
		"event_type":     eventType,
		"description":    it.Title,
		"source":         it.Source,
		"url":            it.URL,
		"published_date": it.Published.Format(time.RFC3339),
		"significance":   newsSignificance(eventType),
		"timestamp":      it.Published.Format(time.RFC3339),
	})
}
