package provider

import (
	"net"
	"net/http"
	"time"
)

const defaultRequestTimeout = 120 * time.Second

// modelTransport is shared by the chat and embedding clients so both reuse the
// same keep-alive pool when they point at one Azure resource.
var modelTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConnsPerHost:   8,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: time.Second,
}

// newHTTPClient bounds every model call by timeout; zero selects the default.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &http.Client{Timeout: timeout, Transport: modelTransport}
}
