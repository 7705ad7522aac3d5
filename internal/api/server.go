package api

import (
	"net/http"

	"picshare/internal/auth"
	"picshare/internal/config"
	"picshare/internal/database"
	"picshare/internal/service"
	"picshare/internal/storage"
	"picshare/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "picshare/docs"
)

type Server struct {
	config *config.Config
	store  *database.Store
	media  storage.MediaStore
	stager *storage.Stager
	users  *service.UserService
	images *service.ImageService
	wsHub  *websocket.Hub
	logger *zap.Logger
}

func NewServer(cfg *config.Config, store *database.Store, media storage.MediaStore, wsHub *websocket.Hub, logger *zap.Logger) (*Server, error) {
	stager, err := storage.NewStager(cfg.Storage.TempDir)
	if err != nil {
		return nil, err
	}

	tokens := auth.NewTokenIssuer(cfg.JWT.AccessSecret, cfg.JWT.AccessTTL, cfg.JWT.RefreshSecret, cfg.JWT.RefreshTTL)

	return &Server{
		config: cfg,
		store:  store,
		media:  media,
		stager: stager,
		users:  service.NewUserService(store, media, tokens, logger),
		images: service.NewImageService(store, media, wsHub, logger),
		wsHub:  wsHub,
		logger: logger,
	}, nil
}

// Routes builds the full HTTP surface of the service.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLogger)
	r.Use(s.RecoverMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.BodyLimitMiddleware)

	r.Get("/health", s.HealthCheckHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	if local, ok := s.media.(*storage.LocalStorage); ok {
		mount := local.MountPath()
		r.Handle(mount+"/*", http.StripPrefix(mount, local.Handler()))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/register", s.handle(s.RegisterHandler))
			r.Post("/login", s.handle(s.LoginHandler))
			r.Post("/refresh-token", s.handle(s.RefreshTokenHandler))

			r.Group(func(r chi.Router) {
				r.Use(s.AuthMiddleware)
				r.Post("/logout", s.handle(s.LogoutHandler))
				r.Get("/me", s.handle(s.GetCurrentUserHandler))
			})

			r.Get("/{username}", s.handle(s.GetProfileHandler))
		})

		r.Route("/images", func(r chi.Router) {
			r.Get("/recent", s.handle(s.RecentImagesHandler))
			r.Get("/live", s.LiveFeedHandler)

			r.Group(func(r chi.Router) {
				r.Use(s.AuthMiddleware)
				r.Post("/upload", s.handle(s.UploadImageHandler))
				r.Get("/{imageId}", s.handle(s.GetImageHandler))
				r.Delete("/{imageId}", s.handle(s.DeleteImageHandler))
			})
		})
	})

	return r
}
