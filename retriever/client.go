package retriever

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// ClientOptions configures the shared HTTP client (spec.md §4.1 "Global
// HTTP policy"), grounded on the teacher's cmd/root.go initHTTPClient /
// main.go newHTTPClient dialer tuning.
type ClientOptions struct {
	UserAgent   string
	NoSSLVerify bool
	CookieJar   *cookiejar.Jar
}

// NewClient builds the single pool-managed *http.Client every Retriever
// and apiclient.Client shares: max 20 idle connections, a 90s timeout,
// keep-alive, and a cookie jar using the public suffix list.
func NewClient(opts ClientOptions) *http.Client {
	jar := opts.CookieJar
	if jar == nil {
		j, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			panic(err) // cookiejar.New only fails on a nil options misuse
		}
		jar = j
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // we decode Content-Encoding ourselves, see decoder.go
	}
	if opts.NoSSLVerify {
		transport.TLSClientConfig = insecureTLSConfig()
	}

	return &http.Client{
		Transport: transport,
		Timeout:   90 * time.Second,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}
