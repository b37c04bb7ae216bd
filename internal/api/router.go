package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"venue-billing-backend/config"
	"venue-billing-backend/internal/mw"
	"venue-billing-backend/internal/session"
	"venue-billing-backend/internal/store"
)

// NewRouter creates and configures a new Gin router. limiter may be nil, in which
// case one is built from the server config.
func NewRouter(cfg *config.Config, s store.Store, sessions *session.Service, webpushOptions *webpush.Options, limiter *mw.IPRateLimiter) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, sessions, webpushOptions, cfg.Billing.Location)

	if limiter == nil {
		limit := rate.Limit(cfg.Server.RateLimitPerSec)
		if cfg.Server.RateLimitPerSec <= 0 {
			limit = rate.Inf
		}
		limiter = mw.NewIPRateLimiter(limit, cfg.Server.RateLimitBurst)
	}

	ttl := cfg.Server.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	responses := mw.NewResponseCache(ttl)
	caching := responses.Cache()

	api := r.Group("/api")
	api.Use(limiter.Middleware(), responses.Invalidate())
	{
		api.GET("/halls", caching, handler.GetHalls)
		api.GET("/resources", caching, handler.GetResources)
		api.GET("/products", caching, handler.GetProducts)
		api.POST("/products/:id/restock", handler.RestockProduct)

		api.POST("/sessions", handler.CreateSession)
		api.GET("/sessions", handler.ListSessions)
		api.GET("/sessions/:id", handler.GetSession)
		api.GET("/sessions/:id/total", handler.GetSessionTotal)
		api.POST("/sessions/:id/members", handler.AddMember)
		api.DELETE("/sessions/:id/members/:member_id", handler.RemoveMember)
		api.POST("/sessions/:id/members/:member_id/orders", handler.AdjustOrder)
		api.POST("/sessions/:id/transfer", handler.TransferSession)
		api.POST("/sessions/:id/end", handler.EndSession)

		api.GET("/history", caching, handler.GetHistory)
		api.GET("/promocodes/:code", handler.GetPromocode)
		api.GET("/members/:id/session", handler.GetMemberSession)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
