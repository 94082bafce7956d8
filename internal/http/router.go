package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yogalab/classhub/internal/cache"
	"github.com/yogalab/classhub/internal/config"
	"github.com/yogalab/classhub/internal/domain/user"
	"github.com/yogalab/classhub/internal/http/handlers"
	"github.com/yogalab/classhub/internal/http/middlewares"
	"github.com/yogalab/classhub/internal/observability"
	"github.com/yogalab/classhub/internal/payments"
	"github.com/yogalab/classhub/internal/profiles"
	"github.com/yogalab/classhub/internal/redisclient"
	"github.com/yogalab/classhub/internal/repo/postgres"

	jwtauth "github.com/yogalab/classhub/internal/auth"
)

func NewRouter(log *slog.Logger, pool *pgxpool.Pool, cfg config.Config) *gin.Engine {
	if cfg.Env != "dev" && cfg.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(otelgin.Middleware("classhub-api"))
	r.Use(prom.GinHandleMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware([]string{"http://localhost:3000", "http://localhost:5173"}))
	r.Use(middlewares.MaxBodyBytes(1 << 20)) // 1 MiB
	r.Use(middlewares.RequireJSON())

	// health + metrics
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	h := handlers.NewHealthHandler(ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(pool, prom)
	classesRepo := postgres.NewClassesRepo(pool, prom)
	cartRepo := postgres.NewCartRepo(pool, prom)
	paymentsRepo := postgres.NewPaymentsRepo(pool, prom)
	jobsRepo := postgres.NewJobsRepo(pool, prom)
	refreshRepo := postgres.NewRefreshTokensRepo(pool)

	jwtManager := jwtauth.NewManager(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())
	authMW := middlewares.NewAuthMiddleware(jwtManager)

	// optional externals: processor and profile directory degrade to nil
	// when unconfigured, handlers answer payment_unavailable / skip photos
	var processor payments.Processor

	if cfg.OmisePublicKey != "" && cfg.OmiseSecretKey != "" {
		p, err := payments.NewOmiseProcessor(cfg.OmisePublicKey, cfg.OmiseSecretKey, cfg.Currency)

		if err != nil {
			log.Error("omise client init failed", "err", err)
		} else {
			processor = p
		}
	}

	var directory profiles.Directory

	if cfg.ProfileAPIBaseURL != "" {
		var d profiles.Directory = profiles.NewHTTPDirectory(cfg.ProfileAPIBaseURL)

		if cfg.RedisAddr != "" {
			rdb := redisclient.New(redisclient.Config{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			d = profiles.NewCachedDirectory(d, rdb.Raw(), log, 10*time.Minute)
		}

		directory = d
	}

	listCache := cache.New(5 * time.Second)

	// handlers
	authHandler := handlers.NewAuthHandler(usersRepo, jwtManager, refreshRepo, cfg)
	usersHandler := handlers.NewUsersHandler(usersRepo)
	classesHandler := handlers.NewClassesHandler(classesRepo, directory, listCache, log, cfg.TopClassesLimit)
	cartHandler := handlers.NewCartHandler(cartRepo, classesRepo)
	paymentsHandler := handlers.NewPaymentsHandler(paymentsRepo, cartRepo, classesRepo, jobsRepo, processor, prom, log, cfg.Currency)
	adminJobsHandler := handlers.NewAdminJobsHandler(jobsRepo)

	// auth endpoints get an IP rate limit on top of everything else
	authLimiter := middlewares.NewRateLimiter(20, time.Minute)
	payLimiter := middlewares.NewRateLimiter(60, time.Minute)

	authGroup := r.Group("/auth")
	authGroup.Use(authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	{
		authGroup.POST("/token", authHandler.Token)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// public surface: sign-up, catalog, purchase-group expansion
	r.POST("/users", usersHandler.Create)
	r.GET("/classes", classesHandler.List)
	r.POST("/payments/settled-classes", paymentsHandler.SettledClasses)

	authed := r.Group("/")
	authed.Use(authMW.RequireAuth())
	{
		authed.GET("/users/:email/role", usersHandler.GetRole)
		authed.GET("/classes/:id", classesHandler.GetByID)

		// payments need authentication, not a specific role; settlement is
		// payer-scoped via the token identity. Per-user limit on top.
		pay := authed.Group("/payments")
		pay.Use(payLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))
		{
			pay.POST("/intent", paymentsHandler.CreateIntent)
			pay.POST("/settle", paymentsHandler.Settle)
			pay.GET("/history", paymentsHandler.History)
		}
	}

	instructor := r.Group("/")
	instructor.Use(authMW.RequireAuth(), authMW.RequireRole(user.RoleInstructor))
	{
		instructor.POST("/classes", classesHandler.Create)
		instructor.GET("/classes/mine", classesHandler.Mine)
	}

	student := r.Group("/")
	student.Use(authMW.RequireAuth(), authMW.RequireRole(user.RoleStudent))
	{
		student.POST("/cart/items", cartHandler.Add)
		student.GET("/cart/items", cartHandler.List)
		student.DELETE("/cart/items/:id", cartHandler.Remove)
	}

	admin := r.Group("/")
	admin.Use(authMW.RequireAuth(), authMW.RequireRole(user.RoleAdmin))
	{
		admin.GET("/users", usersHandler.List)
		admin.PUT("/users/:email/role", usersHandler.SetRole)

		admin.GET("/classes/pending", classesHandler.Pending)
		admin.PUT("/classes/:id/review", classesHandler.Review)

		admin.GET("/admin/jobs", adminJobsHandler.List)
		admin.GET("/admin/jobs/:id", adminJobsHandler.GetByID)
		admin.POST("/admin/jobs/:id/retry", adminJobsHandler.Retry)
		admin.POST("/admin/jobs/reprocess-dead", adminJobsHandler.ReprocessDead)
	}

	return r
}
