// Package mastodon collects statuses from a Mastodon instance, either from a
// hashtag timeline or from full-text status search.
package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/engine/scraper"
)

// Mode selects the endpoint used to find statuses.
type Mode string

const (
	// ModeHashtag pages /api/v1/timelines/tag/{tag}. It needs no token.
	ModeHashtag Mode = "hashtag"
	// ModeSearch pages /api/v2/search?type=statuses. Most instances require
	// a token for status search.
	ModeSearch Mode = "search"
)

const (
	DefaultBaseURL  = "https://mastodon.social"
	DefaultPageSize = 40
	maxPageSize     = 40
)

// DefaultBridgeDomains are account domains that mirror other networks into
// the fediverse.
var DefaultBridgeDomains = []string{
	"brid.gy",
	"bird.makeup",
	"mostr.pub",
	"momostr.pink",
	"rss-parrot.net",
}

// Config controls collector behavior.
type Config struct {
	BaseURL       string
	Token         string
	Mode          Mode
	PageSize      int
	BridgeDomains []string
	UserAgent     string
	// Interval is the minimum spacing between page requests.
	Interval time.Duration
	Timeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Mode == "" {
		c.Mode = ModeHashtag
	}
	if c.PageSize <= 0 || c.PageSize > maxPageSize {
		c.PageSize = DefaultPageSize
	}
	if c.BridgeDomains == nil {
		c.BridgeDomains = DefaultBridgeDomains
	}
	if c.UserAgent == "" {
		c.UserAgent = scraper.DefaultUserAgent
	}
	return c
}

// Stats counts why statuses were kept or dropped during one Search.
type Stats struct {
	Pages     int
	Fetched   int
	Malformed int
	Reblogs   int
	Bridged   int
	LowScore  int
	Empty     int
	Duplicate int
	Kept      int
}

// Collector implements scraper.Collector for Mastodon.
type Collector struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a Collector. A nil logger uses slog.Default.
func New(cfg Config, log *slog.Logger) *Collector {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Collector{
		cfg:     cfg,
		client:  scraper.NewHTTPClient(cfg.Timeout),
		limiter: rate.NewLimiter(limit, 1),
		log:     log.With("source", domain.SourceMastodon),
	}
}

// Source reports domain.SourceMastodon.
func (c *Collector) Source() domain.Source { return domain.SourceMastodon }

// Search implements scraper.Collector.
func (c *Collector) Search(ctx context.Context, keyword string, limit, minScore int) ([]domain.Record, error) {
	recs, _, err := c.SearchWithStats(ctx, keyword, limit, minScore)
	return recs, err
}

// SearchWithStats is Search that also reports filter counts.
func (c *Collector) SearchWithStats(ctx context.Context, keyword string, limit, minScore int) ([]domain.Record, Stats, error) {
	var stats Stats
	if err := domain.ValidateSearch(keyword, limit, minScore); err != nil {
		return nil, stats, err
	}
	keyword = strings.TrimSpace(keyword)

	seen := make(map[string]struct{})
	var out []domain.Record
	cur := cursor{}

	for len(out) < limit {
		items, err := c.fetchPage(ctx, keyword, cur)
		if err != nil {
			if stats.Pages == 0 {
				c.log.Warn("initial fetch failed", "keyword", keyword, "mode", c.cfg.Mode, "err", err)
			} else {
				c.log.Warn("pagination stopped", "keyword", keyword, "pages", stats.Pages, "err", err)
			}
			break
		}
		stats.Pages++
		if len(items) == 0 {
			break
		}

		lastID := ""
		for _, raw := range items {
			stats.Fetched++
			var st status
			if err := json.Unmarshal(raw, &st); err != nil || st.ID == "" {
				stats.Malformed++
				continue
			}
			lastID = st.ID
			if len(out) >= limit {
				continue
			}
			if rec, ok := c.accept(st, keyword, minScore, seen, &stats); ok {
				out = append(out, rec)
			}
		}

		next := cur.advance(c.cfg.Mode, lastID, len(items))
		if next == cur {
			break
		}
		cur = next
	}

	stats.Kept = len(out)
	c.log.Debug("search done", "keyword", keyword, "kept", stats.Kept, "fetched", stats.Fetched,
		"reblogs", stats.Reblogs, "bridged", stats.Bridged, "low_score", stats.LowScore,
		"empty", stats.Empty, "duplicate", stats.Duplicate, "malformed", stats.Malformed)
	return out, stats, nil
}

// accept applies the filters in order: reblog, bridge, score, empty text,
// already seen.
func (c *Collector) accept(st status, keyword string, minScore int, seen map[string]struct{}, stats *Stats) (domain.Record, bool) {
	if st.Reblog != nil {
		stats.Reblogs++
		return domain.Record{}, false
	}
	if c.isBridged(st.Account.Acct) {
		stats.Bridged++
		return domain.Record{}, false
	}
	favs := max(st.FavouritesCount, 0)
	if favs < minScore {
		stats.LowScore++
		return domain.Record{}, false
	}
	text := scraper.CleanMarkup(st.Content)
	if text == "" {
		stats.Empty++
		return domain.Record{}, false
	}
	if _, dup := seen[st.ID]; dup {
		stats.Duplicate++
		return domain.Record{}, false
	}
	seen[st.ID] = struct{}{}

	extras, _ := json.Marshal(map[string]any{
		"language":      st.Language,
		"reblogs_count": st.ReblogsCount,
		"replies_count": st.RepliesCount,
	})
	return domain.Record{
		ID:         st.ID,
		Source:     domain.SourceMastodon,
		Author:     st.Account.Acct,
		Text:       text,
		CreatedUTC: st.CreatedAt,
		URL:        st.URL,
		Keyword:    keyword,
		Score:      favs,
		Extras:     extras,
	}, true
}

// isBridged reports whether acct lives on one of the bridge domains or a
// subdomain of one.
func (c *Collector) isBridged(acct string) bool {
	at := strings.LastIndexByte(acct, '@')
	if at < 0 {
		return false
	}
	host := strings.ToLower(acct[at+1:])
	for _, d := range c.cfg.BridgeDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func (c *Collector) fetchPage(ctx context.Context, keyword string, cur cursor) ([]json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.pageURL(keyword, cur)
	header := http.Header{"User-Agent": []string{c.cfg.UserAgent}}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	body, err := scraper.Get(ctx, c.client, u, header)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if c.cfg.Mode == ModeSearch {
		var resp struct {
			Statuses []json.RawMessage `json:"statuses"`
		}
		if err := json.NewDecoder(body).Decode(&resp); err != nil {
			return nil, fmt.Errorf("decode search: %w", err)
		}
		return resp.Statuses, nil
	}
	var items []json.RawMessage
	if err := json.NewDecoder(body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	return items, nil
}

func (c *Collector) pageURL(keyword string, cur cursor) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.cfg.PageSize))
	if c.cfg.Mode == ModeSearch {
		q.Set("q", keyword)
		q.Set("type", "statuses")
		q.Set("resolve", "false")
		if cur.offset > 0 {
			q.Set("offset", strconv.Itoa(cur.offset))
		}
		return c.cfg.BaseURL + "/api/v2/search?" + q.Encode()
	}
	if cur.maxID != "" {
		q.Set("max_id", cur.maxID)
	}
	tag := strings.TrimLeft(keyword, "#")
	return c.cfg.BaseURL + "/api/v1/timelines/tag/" + url.PathEscape(tag) + "?" + q.Encode()
}

// cursor is the paging position: max_id for timelines, offset for search.
type cursor struct {
	maxID  string
	offset int
}

func (cur cursor) advance(mode Mode, lastID string, pageLen int) cursor {
	if mode == ModeSearch {
		return cursor{offset: cur.offset + pageLen}
	}
	if lastID == "" {
		return cur
	}
	return cursor{maxID: lastID}
}

type status struct {
	ID              string `json:"id"`
	CreatedAt       string `json:"created_at"`
	Content         string `json:"content"`
	URL             string `json:"url"`
	Language        string `json:"language"`
	FavouritesCount int    `json:"favourites_count"`
	ReblogsCount    int    `json:"reblogs_count"`
	RepliesCount    int    `json:"replies_count"`
	Reblog          *struct {
		ID string `json:"id"`
	} `json:"reblog"`
	Account struct {
		Acct string `json:"acct"`
	} `json:"account"`
}
