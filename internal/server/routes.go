package server

import (
	"github.com/artofficial/intake/internal/server/handlers"
)

// NewsletterPaths are the submission routes; /api/newsletter keeps the
// path existing site forms post to.
var NewsletterPaths = []string{"/newsletter", "/api/newsletter"}

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.deps.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)

	s.router.Get("/metrics", s.MetricsHandler)

	if s.deps.Newsletter != nil {
		newsletterHandler := handlers.NewNewsletterHandler(s.deps.Newsletter, s.deps.Journal)
		for _, path := range NewsletterPaths {
			s.router.Method("POST", path, newsletterHandler)
		}
	}
}
