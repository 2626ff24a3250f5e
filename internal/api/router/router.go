package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/mentalcare-crisis-engine/internal/http/middleware"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger        *logging.Logger
	Conversations *handlers.ConversationsHandler
	Questions     *handlers.QuestionsHandler
	Hotlines      *handlers.HotlinesHandler
	EmergencyLogs *handlers.AdminEmergencyLogsHandler
	Health        *handlers.HealthHandler

	// Events upgrades GET /v1/conversations/{id}/events to the websocket feed.
	Events             http.HandlerFunc
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string

	// QuestionWrites throttles custom question writes per client (optional).
	QuestionWrites *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Conversations == nil {
		panic("router: conversations handler cannot be nil")
	}
	if cfg.Health == nil {
		cfg.Health = handlers.NewHealthHandler(nil, cfg.Logger)
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints
	r.Get("/health", cfg.Health.Check)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// The websocket upgrade must see the raw connection, so it stays out of Compress.
	if cfg.Events != nil {
		r.Get("/v1/conversations/{id}/events", cfg.Events)
	}

	r.Group(func(api chi.Router) {
		api.Use(middleware.Compress(5))

		api.Route("/v1/conversations", func(r chi.Router) {
			r.Post("/", cfg.Conversations.Open)
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", cfg.Conversations.Close)
				r.Post("/messages", cfg.Conversations.PostMessage)
				r.Post("/predefined/{questionID}", cfg.Conversations.PostPredefined)
				r.Route("/emergency", func(r chi.Router) {
					r.Get("/", cfg.Conversations.GetEmergency)
					r.Post("/connect", cfg.Conversations.ConnectEmergency)
					r.Post("/cancel", cfg.Conversations.CancelEmergency)
				})
			})
		})

		if cfg.Hotlines != nil {
			api.Get("/v1/hotlines", cfg.Hotlines.Get)
		}

		if cfg.Questions != nil {
			api.Route("/v1/users/{userID}/questions", func(r chi.Router) {
				r.Get("/", cfg.Questions.List)
				r.Group(func(w chi.Router) {
					if cfg.QuestionWrites != nil {
						w.Use(httpmiddleware.RateLimit(cfg.QuestionWrites))
					}
					w.Post("/", cfg.Questions.Create)
					w.Delete("/{questionID}", cfg.Questions.Delete)
				})
			})
		}

		// Audit review, protected by an HS256 reviewer token.
		if cfg.EmergencyLogs != nil && cfg.AdminAuthSecret != "" {
			api.Route("/admin", func(admin chi.Router) {
				admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
				admin.Get("/emergency-logs", cfg.EmergencyLogs.List)
			})
		}
	})

	return r
}
