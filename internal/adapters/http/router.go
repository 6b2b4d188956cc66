package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/adapters/signal"
	"github.com/dkeye/Canvas/internal/app/orch"
	"github.com/dkeye/Canvas/internal/config"
)

const sessionName = "CanvasSessions"

// ClientTokenMiddleware keeps a per-browser uuid in the signed session
// cookie and exposes it as the connection id.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(signal.ClientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			session.Set(signal.ClientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(signal.ClientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	rooms := &roomHandlers{orch: o, publicURL: cfg.PublicURL, qrSize: cfg.QRSize}
	ctrl := signal.NewSignalWSController(o, signal.OptionsFromConfig(cfg))

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/rooms", rooms.list)
	api.GET("/rooms/:code", rooms.info)
	api.GET("/rooms/:code/qr", rooms.qr)

	return r
}

// shareURL is the link a QR code points at. Without a configured public
// URL it is derived from the request.
func shareURL(publicURL string, r *http.Request, code string) string {
	base := strings.TrimRight(publicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/?room=" + url.QueryEscape(code)
}
