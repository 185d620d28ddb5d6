// Package gmail wraps the Gmail REST API surface the pipeline consumes:
// thread search, thread hydration, and the user profile.
package gmail

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
	gapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const userID = "me"

// Client defines the Gmail operations used by the pipeline.
type Client interface {
	// SearchThreads lists thread stubs matching a Gmail query string.
	SearchThreads(ctx context.Context, query string, maxResults int64) ([]*gapi.Thread, error)
	// GetThread hydrates a full thread with message payloads and headers.
	GetThread(ctx context.Context, threadID string) (*gapi.Thread, error)
	// Profile returns the authenticated user's Gmail profile.
	Profile(ctx context.Context) (*gapi.Profile, error)
}

// Option configures the client.
type Option func(*apiClient)

// WithRateLimit overrides the default request rate limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *apiClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type apiClient struct {
	svc     *gapi.Service
	limiter *rate.Limiter
}

// NewClient builds a Gmail client on top of an authenticated HTTP client
// (typically oauth2.Config.Client). Requests are rate limited to stay
// inside the per-user Gmail API quota.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...Option) (Client, error) {
	svc, err := gapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, eris.Wrap(err, "gmail: new service")
	}

	c := &apiClient{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *apiClient) SearchThreads(ctx context.Context, query string, maxResults int64) ([]*gapi.Thread, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "gmail: rate limit")
	}

	if maxResults <= 0 {
		maxResults = 50
	}

	resp, err := c.svc.Users.Threads.List(userID).
		Q(query).
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, eris.Wrapf(err, "gmail: threads.list %q", query)
	}
	return resp.Threads, nil
}

func (c *apiClient) GetThread(ctx context.Context, threadID string) (*gapi.Thread, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "gmail: rate limit")
	}

	thread, err := c.svc.Users.Threads.Get(userID, threadID).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, eris.Wrapf(err, "gmail: threads.get %s", threadID)
	}
	return thread, nil
}

func (c *apiClient) Profile(ctx context.Context) (*gapi.Profile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "gmail: rate limit")
	}

	profile, err := c.svc.Users.GetProfile(userID).Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrap(err, "gmail: get profile")
	}
	return profile, nil
}
