// Package reddit collects keyword search results from Reddit's public JSON
// listing API.
package reddit

import "time"

// Config controls collector behavior.
type Config struct {
	// Subreddit scopes the search. Empty means r/all.
	Subreddit string
	// Sort is the listing order passed to search. Empty means "new".
	Sort      string
	UserAgent string
	// RateLimit is the minimum spacing between requests.
	RateLimit time.Duration
	Timeout   time.Duration
}

// Reddit JSON API response types

type listingResponse struct {
	Data struct {
		Children []listingChild `json:"children"`
		After    string         `json:"after"`
	} `json:"data"`
}

type listingChild struct {
	Kind string      `json:"kind"`
	Data listingData `json:"data"`
}

type listingData struct {
	ID          string  `json:"id"`
	Subreddit   string  `json:"subreddit"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	SelfText    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}
