package web

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const anyOrigin = "*"

var (
	errNoOrigins          = errors.New("cors.origins.empty")
	errMalformedOrigin    = errors.New("cors.origins.malformed")
	errWildcardWithOthers = errors.New("cors.origins.wildcard_mixed")
)

// Clients authenticate with bearer headers, never cookies, so responses never allow credentials.
var (
	corsMethods        = []string{"GET", "POST", "OPTIONS"}
	corsRequestHeaders = []string{"Authorization", "Content-Type"}
	corsExposedHeaders = []string{"Content-Type"}
)

// ConfigureCORS builds the cross-origin middleware. A lone "*" opens the API to every origin.
func ConfigureCORS(logger *zap.Logger, allowedOrigins []string) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins, allowAll, err := normalizeOrigins(logger, allowedOrigins)
	if err != nil {
		return nil, err
	}
	config := cors.Config{
		AllowAllOrigins:  allowAll,
		AllowOrigins:     origins,
		AllowMethods:     corsMethods,
		AllowHeaders:     corsRequestHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	return cors.New(config), nil
}

// normalizeOrigins lowercases schemes and hosts, drops duplicates, and keeps first-seen order.
func normalizeOrigins(logger *zap.Logger, configured []string) ([]string, bool, error) {
	wildcard := false
	var explicit []string
	known := map[string]bool{}
	for _, entry := range configured {
		candidate := strings.TrimSpace(entry)
		switch {
		case candidate == "":
			continue
		case candidate == anyOrigin:
			wildcard = true
			continue
		}
		origin, err := canonicalOrigin(candidate)
		if err != nil {
			return nil, false, err
		}
		if known[origin.String()] {
			continue
		}
		known[origin.String()] = true
		if origin.Scheme == "http" && !isLoopbackHost(origin.Hostname()) {
			logger.Warn("plain http cors origin",
				zap.String("code", "cors.origin.unsafe"),
				zap.String("origin", origin.String()))
		}
		explicit = append(explicit, origin.String())
	}

	switch {
	case wildcard && len(explicit) > 0:
		return nil, false, fmt.Errorf("%w: %q cannot be combined with %v", errWildcardWithOthers, anyOrigin, explicit)
	case wildcard:
		logger.Info("cors open to every origin", zap.String("code", "cors.origin.any"))
		return nil, true, nil
	case len(explicit) == 0:
		return nil, false, errNoOrigins
	}
	return explicit, false, nil
}

func canonicalOrigin(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %s", errMalformedOrigin, raw)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: %s must use http or https", errMalformedOrigin, raw)
	}
	if strings.Trim(parsed.Path, "/") != "" || parsed.RawQuery != "" || parsed.Fragment != "" || parsed.User != nil {
		return nil, fmt.Errorf("%w: %s must be scheme and host only", errMalformedOrigin, raw)
	}
	return &url.URL{Scheme: scheme, Host: strings.ToLower(parsed.Host)}, nil
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
