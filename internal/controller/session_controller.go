package controller

import (
	"form-analytics-service/internal/model"
	"form-analytics-service/internal/service"

	"github.com/gofiber/fiber/v2"
)

type SessionController interface {
	Start(c *fiber.Ctx) error
	Interaction(c *fiber.Ctx) error
	Started(c *fiber.Ctx) error
	Completed(c *fiber.Ctx) error
	Submitted(c *fiber.Ctx) error
	DropOff(c *fiber.Ctx) error
}

// sessionController ingests the embed script's lifecycle events.
type sessionController struct {
	collector service.AnalyticsCollector
}

// NewSessionController builds a SessionController.
func NewSessionController(collector service.AnalyticsCollector) SessionController {
	return &sessionController{collector: collector}
}

func (h *sessionController) Start(c *fiber.Ctx) error {
	var req model.StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}
	if req.Referrer == "" {
		req.Referrer = c.Get(fiber.HeaderReferer)
	}
	if req.Country == "" {
		req.Country = c.Get("CF-IPCountry")
	}

	session, err := h.collector.StartSession(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

func (h *sessionController) Interaction(c *fiber.Ctx) error {
	var req model.InteractionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}
	if err := h.collector.TrackInteraction(c.UserContext(), c.Params("sessionId"), req); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *sessionController) Started(c *fiber.Ctx) error {
	return h.accepted(c, h.collector.MarkStarted(c.UserContext(), c.Params("sessionId")))
}

func (h *sessionController) Completed(c *fiber.Ctx) error {
	return h.accepted(c, h.collector.MarkCompleted(c.UserContext(), c.Params("sessionId")))
}

func (h *sessionController) Submitted(c *fiber.Ctx) error {
	return h.accepted(c, h.collector.MarkSubmitted(c.UserContext(), c.Params("sessionId")))
}

// DropOff accepts an empty body, which attributes the drop-off to the last
// touched field.
func (h *sessionController) DropOff(c *fiber.Ctx) error {
	var req model.DropOffRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
		}
	}
	return h.accepted(c, h.collector.TrackDropOff(c.UserContext(), c.Params("sessionId"), req.FieldID))
}

func (h *sessionController) accepted(c *fiber.Ctx, err error) error {
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}
