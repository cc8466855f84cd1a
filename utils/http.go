// utils/http.go
package utils

import (
	"io"
	"net/http"
	"time"
)

// HTTPClient is shared by outbound integrations (profile sync, quest advice).
var HTTPClient = NewHTTPClient(30 * time.Second)

func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// DrainAndClose empties and closes a response body so the connection can be reused.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
