package api

import (
	stdhttp "net/http"

	intconfig "busbooking/internal/config"
	h "busbooking/internal/http/handlers"
	"busbooking/internal/http/middleware"
	"busbooking/internal/utils"

	"github.com/gin-gonic/gin"
)

func NewRouter(env intconfig.Env, hs h.Handlers) *gin.Engine {
	h.RegisterValidators()

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), gin.Recovery(), middleware.CORS(env.CORSAllowedOrigins))

	if err := r.SetTrustedProxies(nil); err != nil {
		utils.Logger().Warn("failed to set trusted proxies", "err", err)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route tidak ditemukan",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	api := r.Group("/api")
	{
		api.GET("/health", hs.Health)
		api.GET("/cancellation-policy", hs.CancellationPolicy)
		api.GET("/schedules/:id/seats", hs.GetSeatMap)

		authed := api.Group("", middleware.AuthRequired([]byte(env.JWTSecret)))

		// Bookings
		bookings := authed.Group("/bookings")
		bookings.POST("", hs.CreateBooking)
		bookings.GET("/:id", hs.GetBooking)
		bookings.GET("/:id/refund-quote", hs.RefundQuote)
		bookings.POST("/:id/cancel", hs.CancelBooking)
		bookings.GET("/:id/ticket", hs.GetTicket)

		// Payments
		payments := authed.Group("/payments")
		payments.POST("/initiate", hs.InitiatePayment)
		payments.POST("/verify", hs.VerifyPayment)
	}

	return r
}
