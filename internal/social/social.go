// Package social formats the weekly edition as an X thread and posts it.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"genzweekly/internal/core"
	"genzweekly/internal/logger"
)

const (
	HookText         = "This week was 🔥! Here's your Gen Z news rundown. Thread 👇"
	MaxTweetLength   = 250
	MaxTitleLength   = 150
	DefaultMaxStory  = 5
	DefaultPostDelay = 10 * time.Second
	DefaultBaseURL   = "https://api.twitter.com"
)

// ErrNotConfigured is returned when no bearer token is available.
var ErrNotConfigured = errors.New("x credentials not configured")

// Tweet is one post of a thread. Positions start at 1 with the hook.
type Tweet struct {
	Text     string `json:"text"`
	Position int    `json:"position"`
}

// BuildThread returns the hook tweet followed by one tweet per top story.
func BuildThread(stories []core.RankedItem, maxStories int) []Tweet {
	if maxStories <= 0 {
		maxStories = DefaultMaxStory
	}
	if len(stories) > maxStories {
		stories = stories[:maxStories]
	}

	tweets := []Tweet{{Text: HookText, Position: 1}}
	for i, story := range stories {
		category := story.Article.Category
		if category == "" {
			category = "News"
		}
		text := fmt.Sprintf("%s Alert: %s... %s", category, clip(story.Article.Title, MaxTitleLength), story.Article.URL)
		tweets = append(tweets, Tweet{Text: clip(text, MaxTweetLength), Position: i + 2})
	}
	return tweets
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Client posts to the X API v2.
type Client struct {
	BearerToken string
	BaseURL     string
	PostDelay   time.Duration
	HTTPClient  *http.Client
}

// NewClient creates a client; zero values select the defaults.
func NewClient(bearerToken, baseURL string, postDelay, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BearerToken: bearerToken,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		PostDelay:   postDelay,
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Reply *replyField `json:"reply,omitempty"`
}

type replyField struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Post creates a tweet, replying to replyTo when it is not empty, and
// returns the new tweet id.
func (c *Client) Post(ctx context.Context, text, replyTo string) (string, error) {
	if c.BearerToken == "" {
		return "", ErrNotConfigured
	}

	payload := tweetRequest{Text: text}
	if replyTo != "" {
		payload.Reply = &replyField{InReplyToTweetID: replyTo}
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/2/tweets", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to post tweet: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("x api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out tweetResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode tweet response: %w", err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("x api response carried no tweet id")
	}
	return out.Data.ID, nil
}

// PostThread posts tweets in position order, each replying to the previous
// one, pausing PostDelay after every post. It stops at the first failure and
// returns the ids posted so far with the error.
func (c *Client) PostThread(ctx context.Context, tweets []Tweet) ([]string, error) {
	if c.BearerToken == "" {
		return nil, ErrNotConfigured
	}
	log := logger.With("twitter_agent")

	ordered := append([]Tweet(nil), tweets...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	var ids []string
	prev := ""
	for _, tweet := range ordered {
		if strings.TrimSpace(tweet.Text) == "" {
			continue
		}
		id, err := c.Post(ctx, tweet.Text, prev)
		if err != nil {
			return ids, fmt.Errorf("tweet %d: %w", tweet.Position, err)
		}
		ids = append(ids, id)
		prev = id
		log.Info("Posted tweet", "position", tweet.Position, "id", id)

		if err := core.Sleep(ctx, c.PostDelay); err != nil {
			return ids, err
		}
	}
	return ids, nil
}
