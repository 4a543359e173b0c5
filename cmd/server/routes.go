package main

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aerodrome-observer/backend/internal/access"
	"github.com/aerodrome-observer/backend/internal/aerodromes"
	"github.com/aerodrome-observer/backend/internal/auth"
	"github.com/aerodrome-observer/backend/internal/invites"
	"github.com/aerodrome-observer/backend/internal/middleware"
	"github.com/aerodrome-observer/backend/internal/observations"
	"github.com/aerodrome-observer/backend/internal/profiles"
	"github.com/aerodrome-observer/backend/internal/realtime"
	"github.com/aerodrome-observer/backend/pkg/response"
)

// routeDeps is everything the HTTP surface needs.
type routeDeps struct {
	jwt             *auth.JWTService
	gate            *access.Gate
	validateLimiter middleware.Allower
	profiles        *profiles.Handler
	invites         *invites.Handler
	aerodromes      *aerodromes.Handler
	observations    *observations.Handler
	hub             *realtime.Hub
	wsAuthorize     realtime.Authorizer
	corsOrigins     string
	logger          *zap.Logger
}

// registerRoutes mounts the middleware chain and every endpoint on router.
func registerRoutes(router *gin.Engine, d routeDeps) {
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(d.corsOrigins))
	router.Use(middleware.Logger(d.logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public
	router.GET("/invites/validate/:token", middleware.RateLimit(d.validateLimiter, "invite_validate", d.logger), d.invites.Validate)
	router.GET("/aerodromes", d.aerodromes.List)
	router.GET("/aerodromes/:icao/summary", d.aerodromes.Summary)
	router.GET("/aerodromes/:icao/feed", middleware.OptionalJWT(d.jwt), d.observations.Feed)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(d.jwt))
	{
		// Profiles
		canManageProfiles := middleware.RequireCapability(d.gate, access.CapManageProfiles, d.logger)
		api.GET("/me", d.profiles.Me)
		api.PATCH("/me", d.profiles.UpdateMe)
		api.GET("/profiles", canManageProfiles, d.profiles.List)
		api.PATCH("/profiles/:id/active", canManageProfiles, d.profiles.SetActive)

		// Invites
		api.POST("/invites", middleware.RequireCapability(d.gate, access.CapMintInvites, d.logger), d.invites.Mint)
		api.GET("/invites", d.invites.List)
		api.POST("/invites/accept", d.invites.Accept)
		api.POST("/invites/:id/revoke", d.invites.Revoke)
		api.GET("/invites/:id/redemptions", d.invites.Redemptions)

		// Observations
		canObserve := middleware.RequireCapability(d.gate, access.CapCreateObservation, d.logger)
		api.POST("/aerodromes/:icao/observations", canObserve, d.observations.Create)
		api.POST("/observations/:id/media", canObserve, d.observations.CreateUploadURL)
		api.POST("/observations/:id/media/:mediaId/complete", canObserve, d.observations.CompleteUpload)
		api.POST("/observations/:id/media/upload", canObserve, d.observations.Upload)
	}

	// WebSocket (optional token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(d.hub, d.wsAuthorize, d.logger))
}
