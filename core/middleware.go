package core

import (
	"crypto/rand"
	"encoding/base64"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const (
	// sessionCookieName carries the opaque server-side session id.
	sessionCookieName = "shop_session"
	// csrfSessionName is the gorilla cookie session holding the CSRF token.
	// It carries no auth state; login sessions live in Redis.
	csrfSessionName = "shop_csrf"

	ctxUserKey = "auth_user"
)

// RequireSession gates protected routes on a valid login session. It resolves
// the cookie-carried session id against the session manager and stashes the
// authenticated user in the request context; anything else short-circuits.
// No credential re-verification happens here.
func RequireSession(cfg Config, manager *SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(sessionCookieName)
		if err != nil || id == "" {
			respondMsg(c, http.StatusUnauthorized, codeNotLoggedIn, "not logged in")
			c.Abort()
			return
		}

		rec, err := manager.Resolve(c.Request.Context(), id)
		if err != nil {
			log.Printf("session resolve failed: %v", err)
			respondMsg(c, http.StatusInternalServerError, codeInternal, "session error")
			c.Abort()
			return
		}
		if rec == nil {
			respondMsg(c, http.StatusUnauthorized, codeNotLoggedIn, "not logged in")
			c.Abort()
			return
		}

		// The server-side record just slid forward; the cookie has to slide
		// with it or the browser drops the session at TTL after login no
		// matter how active the user is.
		setSessionCookie(c, cfg, id, manager.TTLSeconds())

		c.Set(ctxUserKey, rec.User)
		c.Next()
	}
}

// currentUser returns the principal stashed by RequireSession.
func currentUser(c *gin.Context) (User, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return User{}, false
	}
	u, ok := v.(User)
	return u, ok
}

// OriginRefererMiddleware validates Origin/Referer against allowed list and sets CORS headers.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	isAllowed := func(origin string) bool {
		if origin == "" {
			// Same-origin navigation (no Origin header) is allowed.
			return true
		}
		if len(allowed) == 0 {
			return false
		}
		origin = strings.ToLower(origin)
		_, ok := allowed[origin]
		return ok
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		referer := c.GetHeader("Referer")
		if origin == "" && referer != "" {
			if u, err := url.Parse(referer); err == nil {
				origin = u.Scheme + "://" + u.Host
			}
		}

		// Preflight handling
		if c.Request.Method == http.MethodOptions && origin != "" {
			if !isAllowed(origin) {
				respondMsg(c, http.StatusForbidden, codeAuthFailed, "origin not allowed")
				c.Abort()
				return
			}
			setCORSHeaders(c, origin)
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		if !isAllowed(origin) {
			respondMsg(c, http.StatusForbidden, codeAuthFailed, "origin not allowed")
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
}

// CSRFMiddleware issues and validates a per-browser CSRF token kept in a
// signed cookie session, separate from the Redis login session.
func CSRFMiddleware(cfg Config, store *sessions.CookieStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := store.Get(c.Request, csrfSessionName)
		if err != nil {
			respondMsg(c, http.StatusInternalServerError, codeInternal, "session error")
			c.Abort()
			return
		}

		token, _ := session.Values["csrf_token"].(string)
		if token == "" {
			token, err = generateCSRFToken()
			if err != nil {
				respondMsg(c, http.StatusInternalServerError, codeInternal, "failed to issue csrf token")
				c.Abort()
				return
			}
			session.Values["csrf_token"] = token
			applyCookieOptions(cfg, session)
			if err := session.Save(c.Request, c.Writer); err != nil {
				respondMsg(c, http.StatusInternalServerError, codeInternal, "failed to persist csrf token")
				c.Abort()
				return
			}
		}

		if !isSafeMethod(c.Request.Method) && !csrfExemptPath(c.Request.URL.Path) {
			header := c.GetHeader("X-CSRF-Token")
			if header == "" || header != token {
				respondMsg(c, http.StatusForbidden, codeAuthFailed, "invalid csrf token")
				c.Abort()
				return
			}
		}

		// Expose token so frontend can read and reuse.
		c.Writer.Header().Set("X-CSRF-Token", token)
		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// Paths that intentionally skip CSRF validation (no session to ride yet).
func csrfExemptPath(path string) bool {
	switch path {
	case "/api/v1/auth/login", "/api/v1/debug/hash":
		return true
	default:
		return false
	}
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func applyCookieOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
