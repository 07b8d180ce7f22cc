package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"netscope/internal/infra"
)

// ProxyPrefix is the path prefix forwarded to the speed-test backend.
const ProxyPrefix = "/speedtest/backend"

// BackendURL returns the upstream base URL, or nil when host is empty.
func BackendURL(host, port string) (*url.URL, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, nil
	}
	if port == "" {
		port = "80"
	}
	target, err := url.Parse("http://" + net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	return target, nil
}

// NewProxy forwards requests under ProxyPrefix to target with the prefix removed.
// Responses carry credentialed CORS headers for the calling origin.
func NewProxy(target *url.URL, logger *infra.Logger) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			path := strings.TrimPrefix(pr.In.URL.Path, ProxyPrefix)
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			pr.Out.URL.Path = path
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ModifyResponse: func(resp *http.Response) error {
			if origin := resp.Request.Header.Get("Origin"); origin != "" {
				resp.Header.Set("Access-Control-Allow-Origin", origin)
			}
			resp.Header.Set("Access-Control-Allow-Credentials", "true")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Errorw(r.Context(), "proxy error", "path", r.URL.Path, "error", err.Error())
			writeJSON(w, http.StatusBadGateway, errorResponse{
				Error:   "Bad Gateway",
				Message: "Failed to proxy request to speed-test backend",
			})
		},
	}
}
