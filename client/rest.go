package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"noticeboard/models"
	"noticeboard/server"
)

const (
	defaultHttpTimeout        = 30 * time.Second
	defaultHttpConnectTimeout = 5 * time.Second
	defaultHttpTlsTimeout     = 5 * time.Second
)

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

// Client talks to the board's REST interface
type Client struct {
	endpoint string
	apikey   string
	http     *http.Client
}

func New(endpoint, apikey string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apikey:   apikey,
		http:     defaultClient(),
	}
}

func (c *Client) postsURL(id int64) string {
	u := c.endpoint + server.RestPrefix + "/" + models.Table
	if id != 0 {
		u += "/" + strconv.FormatInt(id, 10)
	}
	return u
}

func (c *Client) ListPosts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	if err := c.do(ctx, http.MethodGet, c.postsURL(0), nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (c *Client) GetPost(ctx context.Context, id int64) (models.Post, error) {
	var post models.Post
	err := c.do(ctx, http.MethodGet, c.postsURL(id), nil, &post)
	return post, err
}

func (c *Client) CreatePost(ctx context.Context, post models.Post) (models.Post, error) {
	var created models.Post
	err := c.do(ctx, http.MethodPost, c.postsURL(0), post, &created)
	return created, err
}

func (c *Client) UpdatePost(ctx context.Context, id int64, post models.Post) (models.Post, error) {
	var updated models.Post
	err := c.do(ctx, http.MethodPatch, c.postsURL(id), post, &updated)
	return updated, err
}

func (c *Client) DeletePost(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, c.postsURL(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apikey != "" {
		req.Header.Set("apikey", c.apikey)
		req.Header.Set("Authorization", "Bearer "+c.apikey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	log.WithFields(log.Fields{
		"method":  method,
		"url":     url,
		"status":  resp.StatusCode,
		"latency": time.Since(start),
	}).Debug("Request")

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError keeps the service's error body, falling back to the status text
func decodeError(status int, data []byte) error {
	apiErr := &models.APIError{}
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
		apiErr = &models.APIError{Message: http.StatusText(status)}
		if text := strings.TrimSpace(string(data)); text != "" {
			apiErr.Details = text
		}
	}
	apiErr.Status = status
	return apiErr
}
