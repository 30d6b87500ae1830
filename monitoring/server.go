package monitoring

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/TheeGreenGenie/ticket-leader/utils"
)

// NewOpsServer builds the metrics/health sidecar. It runs on its own
// listener so scrapes never contend with client traffic.
func NewOpsServer(redisClient *redis.Client) *echo.Echo {
	e := echo.New()

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/healthz", func(c echo.Context) error {
		if redisClient != nil {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	return e
}

// StartOpsServer serves the sidecar in the background.
func StartOpsServer(addr string, redisClient *redis.Client) {
	server := &http.Server{
		Addr:    addr,
		Handler: NewOpsServer(redisClient),
	}

	go func() {
		log.Printf("Metrics server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()
}
