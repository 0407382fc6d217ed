package geocode

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// newTestLimiter never blocks.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient sends requests whose URL starts with prefix to the test
// server instead, keeping the remaining path and query.
func newRewriteClient(serverURL, prefix string) *http.Client {
	return &http.Client{Transport: redirectTransport{server: serverURL, prefix: prefix}}
}

type redirectTransport struct {
	server string
	prefix string
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	orig := req.URL.String()
	if !strings.HasPrefix(orig, rt.prefix) {
		return http.DefaultTransport.RoundTrip(req)
	}
	target, err := url.Parse(rt.server + strings.TrimPrefix(orig, rt.prefix))
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	out.URL = target
	out.Host = target.Host
	return http.DefaultTransport.RoundTrip(out)
}
