package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultHSTSMaxAge = 180 * 24 * time.Hour
	exposeHeader      = "Access-Control-Expose-Headers"
)

// DefaultExposeHeaders are the response headers browser clients of the
// complaint API need to read.
var DefaultExposeHeaders = []string{
	requestIDHeader, "ETag", "Location", "Retry-After", HeaderIdempotencyReplayed,
}

// SecurityOptions configures SecurityHeaders.
//
// HSTS is only ever sent on HTTPS requests, and only when EnableHSTS is set;
// HSTSMaxAge <= 0 means 180 days. NoStore keeps complaint data out of shared
// caches: reads get "no-cache, private" so conditional GETs still revalidate
// against the ETag, everything else gets "no-store". EnablePolicy adds
// browser feature policies. ExposeHeaders defaults to DefaultExposeHeaders.
type SecurityOptions struct {
	EnableHSTS    bool
	HSTSMaxAge    time.Duration
	NoStore       bool
	EnablePolicy  bool
	ExposeHeaders []string
}

type headerPair struct{ name, value string }

// SecurityHeaders sets hardening headers on every response. The header set
// is computed once from opt.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	static := []headerPair{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if opt.EnablePolicy {
		static = append(static,
			headerPair{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
			headerPair{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}

	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains; preload"

	expose := opt.ExposeHeaders
	if len(expose) == 0 {
		expose = DefaultExposeHeaders
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, p := range static {
			h.Set(p.name, p.value)
		}
		if opt.NoStore {
			setCacheControl(h, c.Request.Method)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		mergeTokens(h, exposeHeader, expose)
		c.Next()
	}
}

func setCacheControl(h http.Header, method string) {
	if method == http.MethodGet || method == http.MethodHead {
		h.Set("Cache-Control", "no-cache, private")
		return
	}
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

// isHTTPS reports whether the request arrived over TLS, directly or through a
// proxy that set X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// mergeTokens appends names to the comma-separated header hdr, keeping what
// is already there and skipping names present in any letter case.
func mergeTokens(h http.Header, hdr string, names []string) {
	cur := h.Get(hdr)
	for _, name := range names {
		if containsToken(cur, name) {
			continue
		}
		if cur == "" {
			cur = name
		} else {
			cur += ", " + name
		}
	}
	if cur != "" {
		h.Set(hdr, cur)
	}
}

func containsToken(list, name string) bool {
	for _, tok := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(tok), name) {
			return true
		}
	}
	return false
}
