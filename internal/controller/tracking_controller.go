package controller

import (
	"strconv"

	"form-analytics-service/internal/model"
	"form-analytics-service/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

type TrackingController interface {
	Track(c *fiber.Ctx) error
	Performance(c *fiber.Ctx) error
	Funnel(c *fiber.Ctx) error

	CreateTest(c *fiber.Ctx) error
	GetTest(c *fiber.Ctx) error
	TestResults(c *fiber.Ctx) error
	UpdateTestStatus(c *fiber.Ctx) error
	EndTest(c *fiber.Ctx) error
	RecordConversion(c *fiber.Ctx) error
	GetVariant(c *fiber.Ctx) error

	TrackTouchpoint(c *fiber.Ctx) error
	GetJourney(c *fiber.Ctx) error
	GetCustomerValue(c *fiber.Ctx) error
}

// trackingController exposes conversion tracking, A/B tests and customer
// journeys.
type trackingController struct {
	conversions service.ConversionService
	tests       service.ABTestService
	journeys    service.JourneyService
}

// NewTrackingController builds a TrackingController.
func NewTrackingController(conversions service.ConversionService, tests service.ABTestService, journeys service.JourneyService) TrackingController {
	return &trackingController{conversions: conversions, tests: tests, journeys: journeys}
}

// Track accepts a single conversion event.
func (h *trackingController) Track(c *fiber.Ctx) error {
	var req model.EventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}

	event, err := h.conversions.BuildEvent(req)
	if err != nil {
		return err
	}
	if err := h.conversions.TrackEvent(c.UserContext(), event); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"id": event.ID, "status": "accepted"})
}

func (h *trackingController) Performance(c *fiber.Ctx) error {
	days, err := parseDays(c)
	if err != nil {
		return err
	}
	perf, err := h.conversions.GetPerformance(c.UserContext(), c.Params("formId"), days)
	if err != nil {
		return err
	}
	return c.JSON(perf)
}

func (h *trackingController) Funnel(c *fiber.Ctx) error {
	days, err := parseDays(c)
	if err != nil {
		return err
	}
	funnel, err := h.conversions.GetFunnel(c.UserContext(), c.Params("formId"), days)
	if err != nil {
		return err
	}
	return c.JSON(funnel)
}

func (h *trackingController) CreateTest(c *fiber.Ctx) error {
	var req model.CreateTestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}
	test, err := h.tests.CreateTest(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(test)
}

func (h *trackingController) GetTest(c *fiber.Ctx) error {
	test, err := h.tests.GetTest(c.UserContext(), c.Params("testId"))
	if err != nil {
		return err
	}
	return c.JSON(test)
}

func (h *trackingController) TestResults(c *fiber.Ctx) error {
	res, err := h.tests.Results(c.UserContext(), c.Params("testId"))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *trackingController) UpdateTestStatus(c *fiber.Ctx) error {
	var req model.StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}
	test, err := h.tests.UpdateStatus(c.UserContext(), c.Params("testId"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(test)
}

func (h *trackingController) EndTest(c *fiber.Ctx) error {
	var req model.EndTestRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
		}
	}
	test, err := h.tests.EndTest(c.UserContext(), c.Params("testId"), req.WinningVariant)
	if err != nil {
		return err
	}
	return c.JSON(test)
}

func (h *trackingController) RecordConversion(c *fiber.Ctx) error {
	var req model.ConversionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}
	if err := h.tests.RecordConversion(c.UserContext(), c.Params("testId"), req.VariantID, req.Revenue); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// GetVariant answers {"variant": null} when the form has no running test.
func (h *trackingController) GetVariant(c *fiber.Ctx) error {
	assignment, err := h.tests.GetVariant(c.UserContext(), c.Params("formId"), c.Params("sessionId"))
	if err != nil {
		return err
	}
	if assignment == nil {
		return c.JSON(fiber.Map{"variant": nil})
	}
	return c.JSON(assignment)
}

func (h *trackingController) TrackTouchpoint(c *fiber.Ctx) error {
	var tp model.Touchpoint
	if err := c.BodyParser(&tp); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}
	if err := h.journeys.TrackTouchpoint(c.UserContext(), c.Params("customerId"), tp); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *trackingController) GetJourney(c *fiber.Ctx) error {
	customerID := c.Params("customerId")
	journey, err := h.journeys.GetJourney(c.UserContext(), customerID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"customerId": customerID, "touchpoints": journey})
}

func (h *trackingController) GetCustomerValue(c *fiber.Ctx) error {
	value, err := h.journeys.CalculateValue(c.UserContext(), c.Params("customerId"))
	if err != nil {
		return err
	}
	return c.JSON(value)
}

func parseDays(c *fiber.Ctx) (int, error) {
	raw := utils.Trim(c.Query("days"), ' ')
	if raw == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid days")
	}
	return days, nil
}
