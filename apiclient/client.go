// Package apiclient implements the paginated Tumblr v2 API fetcher
// (spec.md §4.2): the public posts/likes endpoints, the svc/indash_blog
// dashboard-only fallback, the two independent rate limits, and replay of a
// previous archive's saved JSON.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	publicPostsURL = "https://api.tumblr.com/v2/blog/%s/posts"
	publicLikesURL = "https://api.tumblr.com/v2/blog/%s/likes"
	svcIndashURL   = "https://www.tumblr.com/svc/indash_blog"

	dashboardOnlyErrorCode = 4012

	maxPerHourSleep = time.Hour
	maxRateLimitSleepLog = 20 * time.Minute
)

// Client fetches pages of posts for one blog, switching transports and
// absorbing rate limits transparently the way spec.md §4.2 describes.
type Client struct {
	http    *http.Client
	apiKey  string
	limiter *rate.Limiter

	blog    string
	likes   bool

	dashboardOnly bool
	loginFunc     func(ctx context.Context) error // lazily logs in for svc mode
}

// New creates a Client for one blog. loginFunc is invoked the first time a
// dashboard-only blog is detected and cookies are required; it may be nil
// if the caller has no login capability configured.
func New(httpClient *http.Client, apiKey string, blog string, likes bool, loginFunc func(ctx context.Context) error) *Client {
	return &Client{
		http:    httpClient,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Every(time.Second/2), 4),
		blog:    blog,
		likes:   likes,
		loginFunc: loginFunc,
	}
}

// GetInitial fetches a single post to learn the blog's title, post count,
// and whether its likes are public (spec.md §4.2 "get_initial").
func (c *Client) GetInitial(ctx context.Context) (*Response, error) {
	return c.apiparse(ctx, 1, 0, time.Time{}, 0)
}

// Apiparse fetches up to count posts, scoped by exactly one of offset,
// before (a reverse-chronological cutoff), or ident (a specific post id).
// When there is nothing more to fetch it returns a non-nil Response that
// holds no posts.
func (c *Client) Apiparse(ctx context.Context, count int, offset int, before time.Time, ident int64) (*Response, error) {
	return c.apiparse(ctx, count, offset, before, ident)
}

func (c *Client) apiparse(ctx context.Context, count int, offset int, before time.Time, ident int64) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var (
		res *http.Response
		err error
	)

	if c.dashboardOnly {
		res, err = c.doIndash(ctx, count, offset)
	} else {
		res, err = c.doPublic(ctx, count, offset, before, ident)
	}
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if err := c.checkRateLimit(res.Header); err != nil {
		return nil, err
	}

	var env apiEnvelope
	bodyErr := json.NewDecoder(res.Body).Decode(&env)

	if !c.dashboardOnly && res.StatusCode == http.StatusNotFound && bodyErr == nil && hasErrorCode(env, dashboardOnlyErrorCode) {
		c.dashboardOnly = true
		if c.loginFunc != nil {
			if err := c.loginFunc(ctx); err != nil {
				return nil, err
			}
		}
		return c.apiparse(ctx, count, offset, before, ident)
	}

	if c.likes && res.StatusCode == http.StatusForbidden {
		return nil, &LikesHiddenError{Blog: c.blog}
	}
	if c.dashboardOnly && res.StatusCode == http.StatusUnauthorized {
		return nil, &MissingCookiesError{}
	}
	if res.StatusCode != http.StatusOK {
		return nil, &BadBlogError{Blog: c.blog, Status: res.StatusCode}
	}
	if bodyErr != nil {
		return nil, fmt.Errorf("invalid JSON from API: %w", bodyErr)
	}

	out := &Response{}
	if len(env.Response) != 0 {
		if err := json.Unmarshal(env.Response, out); err != nil {
			return nil, fmt.Errorf("invalid JSON from API: %w", err)
		}
	}
	return out, nil
}

func hasErrorCode(env apiEnvelope, code int) bool {
	for _, e := range env.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

func (c *Client) doPublic(ctx context.Context, count, offset int, before time.Time, ident int64) (*http.Response, error) {
	base := publicPostsURL
	if c.likes {
		base = publicLikesURL
	}

	u, err := url.Parse(fmt.Sprintf(base, c.blog))
	if err != nil {
		return nil, err
	}

	vals := url.Values{
		"api_key":     {c.apiKey},
		"limit":       {strconv.Itoa(count)},
		"reblog_info": {"true"},
	}
	switch {
	case ident != 0:
		vals.Set("id", strconv.FormatInt(ident, 10))
	case !before.IsZero():
		vals.Set("before", strconv.FormatInt(before.Unix(), 10))
	default:
		vals.Set("offset", strconv.Itoa(offset))
	}
	u.RawQuery = vals.Encode()

	return c.do(ctx, u, nil)
}

func (c *Client) doIndash(ctx context.Context, count, offset int) (*http.Response, error) {
	u, err := url.Parse(svcIndashURL)
	if err != nil {
		return nil, err
	}

	u.RawQuery = url.Values{
		"tumblelog_name_or_id":       {c.blog},
		"limit":                      {strconv.Itoa(count)},
		"offset":                     {strconv.Itoa(offset)},
		"should_bypass_safemode":     {"true"},
		"should_bypass_tagfiltering": {"true"},
	}.Encode()

	return c.do(ctx, u, http.Header{
		"Referer":          {"https://www.tumblr.com/dashboard"},
		"X-Requested-With": {"XMLHttpRequest"},
	})
}

func (c *Client) do(ctx context.Context, u *url.URL, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.http.Do(req)
}

// checkRateLimit implements the two independent limits from spec.md §4.2.
func (c *Client) checkRateLimit(h http.Header) error {
	if v := h.Get("X-Ratelimit-Perday-Remaining"); v == "0" {
		return &DailyLimitError{ResetAt: h.Get("X-Ratelimit-Perday-Reset")}
	}

	resetStr := h.Get("X-Ratelimit-Perhour-Reset")
	if resetStr == "" {
		return nil
	}
	reset, err := strconv.ParseFloat(resetStr, 64)
	if err != nil {
		return nil
	}
	if reset <= 0 {
		return nil
	}
	if time.Duration(reset*float64(time.Second)) > maxPerHourSleep {
		return &PerHourAbortError{ResetSeconds: reset}
	}

	time.Sleep(time.Duration(reset*float64(time.Second)) + time.Second)
	return nil
}

// DashboardOnly reports whether this client has switched to the
// svc/indash_blog transport.
func (c *Client) DashboardOnly() bool { return c.dashboardOnly }
