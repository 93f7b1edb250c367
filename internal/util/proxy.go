package util

import (
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"
)

// NewProxyFunc builds the proxy selector for rule fetches. With no explicit
// proxies the standard environment variables apply; otherwise noProxy is a
// NO_PROXY-style list of hosts that bypass the proxy.
func NewProxyFunc(httpProxy, httpsProxy, noProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	if httpsProxy == "" {
		httpsProxy = httpProxy
	}
	cfg := &httpproxy.Config{
		HTTPProxy:  httpProxy,
		HTTPSProxy: httpsProxy,
		NoProxy:    noProxy,
	}
	selectProxy := cfg.ProxyFunc()

	return func(req *http.Request) (*url.URL, error) {
		return selectProxy(req.URL)
	}
}
