package identity

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/healthy-futures/contest-api/pkg/config"
)

// CookieCarrier stores the switch token in a scoped HTTP cookie.
type CookieCarrier struct {
	c      *gin.Context
	name   string
	path   string
	domain string
	secure bool
}

// NewCookieCarrier binds a carrier to the current request.
func NewCookieCarrier(c *gin.Context, cfg config.IdentityConfig, secure bool) *CookieCarrier {
	name := cfg.CookieName
	if name == "" {
		name = "active_user"
	}
	path := cfg.CookiePath
	if path == "" {
		path = "/"
	}
	return &CookieCarrier{c: c, name: name, path: path, domain: cfg.CookieDomain, secure: secure}
}

// Token returns the raw cookie value, or empty when absent.
func (cc *CookieCarrier) Token() string {
	value, err := cc.c.Cookie(cc.name)
	if err != nil {
		return ""
	}
	return value
}

// SetToken writes the cookie with the given lifetime.
func (cc *CookieCarrier) SetToken(value string, ttl time.Duration) {
	cc.c.SetSameSite(http.SameSiteLaxMode)
	cc.c.SetCookie(cc.name, value, int(ttl.Seconds()), cc.path, cc.domain, cc.secure, true)
}

// ClearToken expires the cookie immediately.
func (cc *CookieCarrier) ClearToken() {
	cc.c.SetSameSite(http.SameSiteLaxMode)
	cc.c.SetCookie(cc.name, "", -1, cc.path, cc.domain, cc.secure, true)
}
