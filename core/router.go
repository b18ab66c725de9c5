package core

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, store *sessions.CookieStore, svc UserService, sessionManager *SessionManager, metrics *AuthMetrics, db *pgxpool.Pool, redisClient *redis.Client) *gin.Engine {
	startedAt := time.Now()
	r := gin.Default()

	// Global middleware: origin/CORS -> CSRF. Session auth is per-route.
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(CSRFMiddleware(cfg, store))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.NoRoute(func(c *gin.Context) {
		respondMsg(c, http.StatusNotFound, codeNotFound, "not found")
	})

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"passwd"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondMsg(c, http.StatusBadRequest, codeAuthFailed, "invalid json")
				return
			}

			ctx := c.Request.Context()
			user, err := svc.Login(ctx, req.Username, req.Password)
			if err != nil {
				_ = metrics.LoginFailed(ctx)
				if errors.Is(err, ErrInvalidCredentials) {
					respondMsg(c, http.StatusUnauthorized, codeAuthFailed, ErrInvalidCredentials.Error())
					return
				}
				// Directory failure: log the cause, answer like any other
				// login failure so the store state is not observable.
				log.Printf("login directory error: %v", err)
				respondMsg(c, http.StatusUnauthorized, codeAuthFailed, "authentication unavailable")
				return
			}

			// Credential check passed; the login is only a success once the
			// session is durably stored.
			sessionID, err := sessionManager.Create(ctx, user)
			if err != nil {
				log.Printf("session create failed for user %d: %v", user.ID, err)
				respondMsg(c, http.StatusInternalServerError, codeInternal, "session error")
				return
			}

			_ = metrics.LoginSucceeded(ctx)
			setSessionCookie(c, cfg, sessionID, sessionManager.TTLSeconds())
			respondMsg(c, http.StatusOK, codeOK, "login success")
		})

		api.POST("/auth/logout", RequireSession(cfg, sessionManager), func(c *gin.Context) {
			id, _ := c.Cookie(sessionCookieName)
			if err := sessionManager.Invalidate(c.Request.Context(), id); err != nil {
				log.Printf("session invalidate failed: %v", err)
				respondMsg(c, http.StatusInternalServerError, codeInternal, "session error")
				return
			}
			setSessionCookie(c, cfg, "", -1)
			respondMsg(c, http.StatusOK, codeOK, "logged out")
		})

		api.GET("/users/:id", RequireSession(cfg, sessionManager), func(c *gin.Context) {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil {
				respondMsg(c, http.StatusNotFound, codeNotFound, "invalid user id")
				return
			}

			user, err := svc.FindUserByID(c.Request.Context(), id)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					respondMsg(c, http.StatusNotFound, codeNotFound, err.Error())
					return
				}
				log.Printf("user lookup failed: %v", err)
				respondMsg(c, http.StatusInternalServerError, codeInternal, "internal error")
				return
			}
			respondData(c, http.StatusOK, user)
		})

		api.GET("/users/me", RequireSession(cfg, sessionManager), func(c *gin.Context) {
			principal, ok := currentUser(c)
			if !ok {
				respondMsg(c, http.StatusUnauthorized, codeNotLoggedIn, "not logged in")
				return
			}

			// Session snapshots can go stale; serve the directory's view.
			user, err := svc.FindUserByID(c.Request.Context(), principal.ID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					respondMsg(c, http.StatusUnauthorized, codeNotLoggedIn, "not logged in")
					return
				}
				log.Printf("user lookup failed: %v", err)
				respondMsg(c, http.StatusInternalServerError, codeInternal, "internal error")
				return
			}
			respondData(c, http.StatusOK, user)
		})

		api.GET("/status", RequireSession(cfg, sessionManager), func(c *gin.Context) {
			st := CollectServiceStatus(c.Request.Context(), db, redisClient, metrics, startedAt)
			respondData(c, http.StatusOK, st)
		})

		// Operator helper for seeding users by hand.
		api.POST("/debug/hash", func(c *gin.Context) {
			var req struct {
				Password string `json:"passwd"`
				Salt     string `json:"salt"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondMsg(c, http.StatusBadRequest, codeAuthFailed, "invalid json")
				return
			}
			c.JSON(http.StatusOK, gin.H{"hash": HashPassword(req.Password, req.Salt)})
		})
	}

	return r
}

// setSessionCookie issues (or with maxAge < 0 clears) the session id cookie.
func setSessionCookie(c *gin.Context, cfg Config, sessionID string, maxAge int) {
	c.SetSameSite(sameSiteFromString(cfg.CookieSameSite))
	c.SetCookie(sessionCookieName, sessionID, maxAge, "/", "", cfg.CookieSecure, true)
}
