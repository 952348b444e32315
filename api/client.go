package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"socialfeed/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/labstack/gommon/log"
	"github.com/valyala/fasthttp"
)

const (
	DefaultBaseURL = "https://jsonplaceholder.typicode.com"
	DefaultTimeout = 10 * time.Second
)

// ErrRequestFailed is wrapped by every transport or non-2xx failure
var ErrRequestFailed = errors.New("remote request failed")

// StatusError is returned for responses outside the 2xx range
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
}

func (e *StatusError) Unwrap() error {
	return ErrRequestFailed
}

// TokenSource returns the current bearer token, empty when signed out
type TokenSource func() string

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Token      TokenSource

	// RetryInterval is the first backoff interval, mainly useful in tests
	RetryInterval time.Duration
}

// Client is a stateless CRUD adapter for the posts and comments resources
type Client struct {
	baseURL       string
	timeout       time.Duration
	maxRetries    int
	retryInterval time.Duration
	token         TokenSource
	http          *fasthttp.Client
}

func NewClient(config Config) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		timeout:       config.Timeout,
		maxRetries:    config.MaxRetries,
		retryInterval: config.RetryInterval,
		token:         config.Token,
		http: &fasthttp.Client{
			Name: "socialfeed",
		},
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.retryInterval <= 0 {
		c.retryInterval = 100 * time.Millisecond
	}
	return c
}

type newPost struct {
	UserId int64  `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// ListPosts returns one page of posts
func (c *Client) ListPosts(ctx context.Context, page, limit int) ([]models.Post, error) {
	query := url.Values{}
	query.Set("_page", strconv.Itoa(page))
	query.Set("_limit", strconv.Itoa(limit))

	var posts []models.Post
	if err := c.do(ctx, fasthttp.MethodGet, "/posts", query, nil, &posts); err != nil {
		return nil, fmt.Errorf("list posts page %d: %w", page, err)
	}
	return posts, nil
}

// ListComments returns every comment of a post as served by the remote.
// The remote has no moderation status, callers assign one.
func (c *Client) ListComments(ctx context.Context, postId int64) ([]models.Comment, error) {
	var comments []models.Comment
	path := fmt.Sprintf("/posts/%d/comments", postId)
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, nil, &comments); err != nil {
		return nil, fmt.Errorf("list comments of post %d: %w", postId, err)
	}
	return comments, nil
}

// CreatePost sends post without its id. The response carries the
// authoritative id and whatever fields the remote chose to echo.
func (c *Client) CreatePost(ctx context.Context, post models.Post) (models.PostPatch, error) {
	var created models.PostPatch
	payload := newPost{UserId: post.UserId, Title: post.Title, Body: post.Body}
	if err := c.do(ctx, fasthttp.MethodPost, "/posts", nil, payload, &created); err != nil {
		return models.PostPatch{}, fmt.Errorf("create post: %w", err)
	}
	return created, nil
}

func (c *Client) UpdatePost(ctx context.Context, id int64, patch models.PostPatch) (models.PostPatch, error) {
	var updated models.PostPatch
	path := fmt.Sprintf("/posts/%d", id)
	if err := c.do(ctx, fasthttp.MethodPut, path, nil, patch, &updated); err != nil {
		return models.PostPatch{}, fmt.Errorf("update post %d: %w", id, err)
	}
	return updated, nil
}

func (c *Client) DeletePost(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/posts/%d", id)
	if err := c.do(ctx, fasthttp.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("delete post %d: %w", id, err)
	}
	return nil
}

// do performs one logical call. Idempotent methods are retried with
// exponential backoff on transport errors and 5xx responses.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	operation := func() error {
		err := c.roundTrip(ctx, method, path, uri, payload, out)
		if err == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code < 500 {
			return backoff.Permanent(err)
		}
		if method == fasthttp.MethodPost || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 5 * time.Second
	b.Multiplier = 2

	retries := c.maxRetries
	if retries < 0 {
		retries = 0
	}

	err := backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx),
		func(err error, wait time.Duration) {
			log.Warnf("retrying %s %s in %s: %s", method, path, wait, err)
		},
	)
	if err != nil {
		log.Errorf("remote call failed: %s", err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path, uri string, payload []byte, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
		}
	}
	if payload != nil {
		req.SetBody(payload)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	start := time.Now()
	err := c.http.DoTimeout(req, resp, timeout)
	requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if err != nil {
		requestsTotal.WithLabelValues(method, "transport_error").Inc()
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}

	code := resp.StatusCode()
	if code < 200 || code > 299 {
		requestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
		return &StatusError{Method: method, Path: path, Code: code}
	}
	requestsTotal.WithLabelValues(method, "ok").Inc()

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		// A body that does not decode will not decode on the next attempt either
		return backoff.Permanent(fmt.Errorf("%w: %s %s: decode response: %v", ErrRequestFailed, method, path, err))
	}
	return nil
}
