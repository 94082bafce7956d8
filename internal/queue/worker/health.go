package worker

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (w *Worker) HealthHandler() http.Handler {
	r := gin.New()

	r.Use(gin.Recovery())

	// liveness: process is up
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// readiness: claim loop is running
	r.GET("/readyz", func(c *gin.Context) {
		w.readyMu.RLock()
		ready := w.ready
		w.readyMu.RUnlock()

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// in-process counters, handy when debugging a stuck queue
	r.GET("/metricsz", func(c *gin.Context) {
		if w.metrics == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}

		snap := w.metrics.Snapshot()

		c.JSON(http.StatusOK, gin.H{
			"claimed":       snap.Claimed,
			"done":          snap.Done,
			"failed":        snap.Failed,
			"retried":       snap.Retried,
			"deadLettered":  snap.DeadLettered,
			"avgDurationMs": snap.AverageDuration.Milliseconds(),
			"maxDurationMs": snap.MaxDuration.Milliseconds(),
		})
	})

	return r
}
