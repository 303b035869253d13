package routes

import (
	"form-analytics-service/internal/controller"

	"github.com/gofiber/fiber/v2"
)

// Register attaches all HTTP routes to the Fiber app.
func Register(app *fiber.App, forms controller.FormController, sessions controller.SessionController, tracking controller.TrackingController) {
	f := app.Group("/forms")
	f.Get("/", forms.List)
	f.Post("/", forms.Create)
	f.Get("/:id", forms.Get)
	f.Put("/:id", forms.Update)
	f.Delete("/:id", forms.Delete)
	f.Post("/:id/publish", forms.Publish)
	f.Post("/:id/unpublish", forms.Unpublish)
	f.Post("/:id/submit", forms.Submit)
	f.Get("/:id/submissions", forms.ListSubmissions)
	f.Get("/:id/submissions/:subId", forms.GetSubmission)
	f.Delete("/:id/submissions/:subId", forms.DeleteSubmission)
	f.Get("/:id/export", forms.Export)
	f.Get("/:id/exports", forms.ListExports)
	f.Get("/:id/embed", forms.Embed)
	f.Get("/:id/analytics", forms.Analytics)

	s := app.Group("/analytics/sessions")
	s.Post("/", sessions.Start)
	s.Post("/:sessionId/interactions", sessions.Interaction)
	s.Post("/:sessionId/started", sessions.Started)
	s.Post("/:sessionId/completed", sessions.Completed)
	s.Post("/:sessionId/submitted", sessions.Submitted)
	s.Post("/:sessionId/dropoff", sessions.DropOff)

	app.Post("/track", tracking.Track)
	app.Get("/performance/:formId", tracking.Performance)
	app.Get("/funnel/:formId", tracking.Funnel)

	ab := app.Group("/abtest")
	ab.Post("/", tracking.CreateTest)
	ab.Get("/:testId", tracking.GetTest)
	ab.Get("/:testId/results", tracking.TestResults)
	ab.Post("/:testId/status", tracking.UpdateTestStatus)
	ab.Post("/:testId/end", tracking.EndTest)
	ab.Post("/:testId/conversions", tracking.RecordConversion)
	app.Get("/variant/:formId/:sessionId", tracking.GetVariant)

	j := app.Group("/journey")
	j.Post("/:customerId", tracking.TrackTouchpoint)
	j.Get("/:customerId", tracking.GetJourney)
	j.Get("/:customerId/value", tracking.GetCustomerValue)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
