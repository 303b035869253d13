package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"form-analytics-service/internal/config"
	"form-analytics-service/internal/controller"
	"form-analytics-service/internal/logger"
	"form-analytics-service/internal/routes"
)

// Controllers groups the handlers mounted by the server.
type Controllers struct {
	Forms    controller.FormController
	Sessions controller.SessionController
	Tracking controller.TrackingController
}

// Server wraps the Fiber application setup.
type Server struct {
	app *fiber.App
}

// NewServer configures routes and middleware.
func NewServer(appCfg *config.Config, log *logger.Logger, ctrls Controllers) *Server {
	fiberCfg := fiber.Config{
		DisableStartupMessage: true,
		Prefork:               appCfg.FiberPrefork,
		ErrorHandler:          controller.ErrorHandler(log),
	}
	app := fiber.New(fiberCfg)
	app.Use(recover.New())
	// The embed script posts from customer sites.
	app.Use(cors.New(cors.Config{AllowOrigins: appCfg.CORSAllowOrigin}))

	routes.Register(app, ctrls.Forms, ctrls.Sessions, ctrls.Tracking)

	return &Server{app: app}
}

// App exposes the underlying Fiber app for in-process requests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen runs the server on provided addr.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
