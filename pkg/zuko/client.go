// Package zuko implements the session egress API client: authenticated,
// cursor-paginated extraction of session records for a form within a
// date window.
package zuko

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/datarmony/zukosync/pkg/errors"
)

// Session is one raw session record as returned by the API. The payload
// shape is not fixed, so it stays a generic map until flattening.
type Session map[string]interface{}

// Window is the half-open extraction time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Config configures the API client.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	Retry          *RetryPolicy
}

// Client fetches sessions from the egress API.
type Client struct {
	config     *Config
	httpClient *http.Client
	retry      *RetryPolicy
	logger     *zap.Logger
}

// sessionsPage is one page of the paginated sessions response.
type sessionsPage struct {
	Sessions   []Session `json:"sessions"`
	NextPageID string    `json:"next_page_id"`
}

// NewClient creates an API client with a tuned transport.
func NewClient(config *Config, logger *zap.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: config.RequestTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.Warn("failed to configure HTTP/2", zap.Error(err))
	}

	retry := config.Retry
	if retry == nil {
		retry = DefaultRetryPolicy()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   config.RequestTimeout,
		},
		retry:  retry,
		logger: logger.With(zap.String("component", "zuko_client")),
	}
}

// FetchSessions streams every session for formUUID within the window to
// fn, following the next_page_id cursor until the API signals the end.
// It returns the number of sessions delivered. An unknown form UUID is
// not an error; the API simply yields no sessions for it.
func (c *Client) FetchSessions(ctx context.Context, formUUID string, window Window, fn func(Session) error) (int, error) {
	params := url.Values{}
	params.Set("form_uuid", formUUID)
	params.Set("time[from]", window.From.UTC().Format("2006-01-02T15:04:05Z"))
	params.Set("time[to]", window.To.UTC().Format("2006-01-02T15:04:05Z"))
	params.Set("includes", "fields,events")

	total := 0
	pages := 0
	for {
		page, err := c.fetchPage(ctx, params)
		if err != nil {
			return total, err
		}
		pages++

		for _, session := range page.Sessions {
			if err := fn(session); err != nil {
				return total, err
			}
			total++
		}

		if page.NextPageID == "" {
			break
		}
		params.Set("next_page_id", page.NextPageID)
	}

	c.logger.Info("fetched sessions",
		zap.String("form_uuid", formUUID),
		zap.Int("sessions", total),
		zap.Int("pages", pages))
	return total, nil
}

// fetchPage requests a single page, retrying transient failures under the
// client's retry policy.
func (c *Client) fetchPage(ctx context.Context, params url.Values) (*sessionsPage, error) {
	var page *sessionsPage

	err := c.retry.Execute(ctx, func() error {
		p, err := c.doRequest(ctx, params)
		if err != nil {
			return err
		}
		page = p
		return nil
	}, errors.IsRetryable)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) doRequest(ctx context.Context, params url.Values) (*sessionsPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExtraction, "failed to build sessions request")
	}
	req.Header.Set("X-Api-Key", c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "sessions request cancelled")
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "sessions request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		errType := errors.ErrorTypeExtraction
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			errType = errors.ErrorTypeConnection
		}
		return nil, errors.New(errType,
			fmt.Sprintf("sessions request returned status %d", resp.StatusCode)).
			WithDetail("body", string(body))
	}

	var page sessionsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExtraction, "failed to decode sessions response")
	}
	return &page, nil
}
