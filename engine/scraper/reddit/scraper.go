package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/engine/scraper"
	"github.com/WessleyAI/pulse/pkg/fn"
	"github.com/WessleyAI/pulse/pkg/resilience"
)

const (
	baseURL = "https://www.reddit.com"
	// IDPrefix namespaces Reddit ids in the shared record table.
	IDPrefix    = "reddit_"
	maxPageSize = 100
)

// Scraper implements scraper.Collector over Reddit search.
type Scraper struct {
	cfg     Config
	client  *http.Client
	limiter *resilience.Limiter
	retry   fn.RetryOpts
	log     *slog.Logger
}

// NewScraper creates a Scraper with the given config. A nil logger uses
// slog.Default.
func NewScraper(cfg Config, log *slog.Logger) *Scraper {
	if cfg.Subreddit == "" {
		cfg.Subreddit = "all"
	}
	if cfg.Sort == "" {
		cfg.Sort = "new"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = scraper.DefaultUserAgent
	}
	if log == nil {
		log = slog.Default()
	}
	retry := fn.DefaultRetry
	retry.InitialWait = 5 * time.Second
	retry.RetryIf = fn.IsTransient
	return &Scraper{
		cfg:     cfg,
		client:  scraper.NewHTTPClient(cfg.Timeout),
		limiter: resilience.NewLimiter(resilience.Every(cfg.RateLimit)),
		retry:   retry,
		log:     log.With("source", domain.SourceReddit),
	}
}

// Source reports domain.SourceReddit.
func (s *Scraper) Source() domain.Source { return domain.SourceReddit }

// Search pulls up to limit submissions matching keyword, newest first, and
// returns those scoring at least minScore.
func (s *Scraper) Search(ctx context.Context, keyword string, limit, minScore int) ([]domain.Record, error) {
	if err := domain.ValidateSearch(keyword, limit, minScore); err != nil {
		return nil, err
	}
	keyword = strings.TrimSpace(keyword)

	var out []domain.Record
	pulled, after := 0, ""
	for pulled < limit {
		page := min(limit-pulled, maxPageSize)
		resp, err := fn.Retry(ctx, s.retry, func(ctx context.Context) fn.Result[*listingResponse] {
			if err := s.limiter.Wait(ctx); err != nil {
				return fn.Err[*listingResponse](err)
			}
			res := s.doGet(ctx, s.searchURL(keyword, page, after, pulled))
			var se *scraper.StatusError
			if _, err := res.Unwrap(); errors.As(err, &se) && se.RetryAfter > 0 {
				s.log.Warn("throttled", "retry_after", se.RetryAfter)
				s.limiter.Pause(se.RetryAfter)
			}
			return res
		}).Unwrap()
		if err != nil {
			s.log.Warn("search stopped", "keyword", keyword, "pulled", pulled, "err", err)
			break
		}

		for _, child := range resp.Data.Children {
			if pulled >= limit {
				break
			}
			if child.Kind != "t3" || child.Data.ID == "" {
				continue
			}
			pulled++
			rec := toRecord(child.Data, keyword)
			if rec.Score < minScore {
				continue
			}
			out = append(out, rec)
		}

		after = resp.Data.After
		if after == "" || len(resp.Data.Children) == 0 {
			break
		}
	}
	return out, nil
}

func toRecord(d listingData, keyword string) domain.Record {
	author := d.Author
	if author == "" {
		author = domain.DeletedAuthor
	}
	extras, _ := json.Marshal(map[string]any{
		"subreddit":    d.Subreddit,
		"num_comments": d.NumComments,
	})
	var link string
	if d.Permalink != "" {
		link = baseURL + d.Permalink
	}
	return domain.Record{
		ID:         IDPrefix + d.ID,
		Source:     domain.SourceReddit,
		Author:     author,
		Text:       d.Title + "\n" + d.SelfText,
		CreatedUTC: time.Unix(int64(d.CreatedUTC), 0).UTC().Format(time.RFC3339),
		URL:        link,
		Keyword:    keyword,
		Score:      max(d.Score, 0),
		Extras:     extras,
	}
}

func (s *Scraper) searchURL(keyword string, page int, after string, count int) string {
	q := url.Values{}
	q.Set("q", keyword)
	q.Set("sort", s.cfg.Sort)
	q.Set("limit", strconv.Itoa(page))
	q.Set("raw_json", "1")
	if s.cfg.Subreddit != "all" {
		q.Set("restrict_sr", "1")
	}
	if after != "" {
		q.Set("after", after)
		q.Set("count", strconv.Itoa(count))
	}
	return fmt.Sprintf("%s/r/%s/search.json?%s", baseURL, url.PathEscape(s.cfg.Subreddit), q.Encode())
}

func (s *Scraper) doGet(ctx context.Context, url string) fn.Result[*listingResponse] {
	header := http.Header{"User-Agent": []string{s.cfg.UserAgent}}
	body, err := scraper.Get(ctx, s.client, url, header)
	if err != nil {
		return fn.Err[*listingResponse](err)
	}
	defer body.Close()

	var resp listingResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return fn.Err[*listingResponse](fmt.Errorf("decode listing: %w", err))
	}
	return fn.Ok(&resp)
}
