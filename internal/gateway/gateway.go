// Package gateway fronts the catalog, accounts and rentals services under a
// single /api/v1 prefix.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"gamerent/internal/platform/config"
	"gamerent/internal/platform/httpx"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const defaultBreakerFailures = 5

var errUpstream = errors.New("upstream server error")

// Mount adds one reverse proxy per backend to r. Each backend sits behind its
// own circuit breaker.
func Mount(r chi.Router, cfg config.GatewayConfig, logger *zap.Logger) error {
	backends := []struct {
		prefix string
		target string
	}{
		{"/api/v1/catalog", cfg.CatalogURL},
		{"/api/v1/accounts", cfg.AccountsURL},
		{"/api/v1/rentals", cfg.RentalsURL},
	}
	for _, b := range backends {
		proxy, err := newProxy(b.prefix, b.target, cfg, logger.With(zap.String("backend", b.prefix)))
		if err != nil {
			return err
		}
		r.Mount(b.prefix, http.StripPrefix(b.prefix, proxy))
	}
	return nil
}

func newProxy(name, target string, cfg config.GatewayConfig, logger *zap.Logger) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", target)
	}
	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.Transport = &breakerTransport{
		cb:   newBreaker(name, cfg, logger),
		next: http.DefaultTransport,
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable", "upstream service unavailable")
			return
		}
		logger.Warn("backend unreachable", zap.String("path", r.URL.Path), zap.Error(err))
		httpx.WriteError(w, http.StatusBadGateway, "unavailable", "upstream service unavailable")
	}
	return proxy, nil
}

func newBreaker(name string, cfg config.GatewayConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.BreakerFailures
	if threshold == 0 {
		threshold = defaultBreakerFailures
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// breakerTransport counts transport errors and 5xx responses against the
// breaker. 5xx responses are still passed through to the client.
type breakerTransport struct {
	cb   *gobreaker.CircuitBreaker
	next http.RoundTripper
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.cb.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errUpstream
		}
		return resp, nil
	})
	if errors.Is(err, errUpstream) {
		return res.(*http.Response), nil
	}
	if err != nil {
		return nil, err
	}
	return res.(*http.Response), nil
}
