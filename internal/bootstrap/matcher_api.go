package bootstrap

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"matcher_server/adapter/in/http"
	"matcher_server/config"
	"matcher_server/infra/middleware"
	"matcher_server/pkg/logger"
)

// NewAPI builds the fiber app with the full middleware stack and all routes
// registered.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	log := logger.Component("api")

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             10 * 1024 * 1024,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
		} else {
			allowOrigins = "http://localhost:3000"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowMethods:  "GET,POST,PATCH,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,X-Request-ID",
		ExposeHeaders: "X-Request-ID",
		MaxAge:        86400,
	}))

	// Health check
	healthHandler := http.NewHealthHandler(deps.DB, deps.Redis, deps.MongoDB)
	healthHandler.Register(app)

	// API routes
	api := app.Group("/api/v1")

	matchHandler := http.NewMatchHandler(
		deps.CycleService,
		deps.Resolver,
		deps.SuggestionRepo,
		deps.PopularityRepo,
		deps.IntakeRepo,
		deps.ReportRepo,
		deps.ReviewRepo,
		deps.Producer,
		time.Now,
	)
	matchHandler.Register(api)

	log.Info().Msg("API server initialized")

	return app, cleanup, nil
}
