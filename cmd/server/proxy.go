package main

import (
	"log/slog"
	"net/http"
	proxyutil "net/http/httputil"
	"net/url"

	dErrors "github.com/khaleddesign/chantierpro-sub001/pkg/domain-errors"
	"github.com/khaleddesign/chantierpro-sub001/pkg/platform/httputil"
	"github.com/khaleddesign/chantierpro-sub001/pkg/requestcontext"
)

// newUpstream forwards requests that passed the gateway to the CRM
// application. Without an upstream every request is answered 404.
func newUpstream(rawURL string, log *slog.Logger) (http.Handler, error) {
	if rawURL == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no upstream configured"))
		}), nil
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	proxy := &proxyutil.ReverseProxy{
		Rewrite: func(pr *proxyutil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Header[requestcontext.HeaderForwardedFor] = pr.In.Header[requestcontext.HeaderForwardedFor]
			pr.SetXForwarded()
			if id := requestcontext.RequestID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(requestcontext.HeaderRequestID, id)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.ErrorContext(r.Context(), "upstream request failed",
				"error", err,
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(r.Context()),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "upstream unavailable"))
		},
	}
	return proxy, nil
}
