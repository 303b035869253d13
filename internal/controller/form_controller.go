package controller

import (
	"strconv"
	"time"

	"form-analytics-service/internal/model"
	"form-analytics-service/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	dateLayout           = "2006-01-02"
	defaultAnalyticsDays = 30
)

type FormController interface {
	List(c *fiber.Ctx) error
	Create(c *fiber.Ctx) error
	Get(c *fiber.Ctx) error
	Update(c *fiber.Ctx) error
	Delete(c *fiber.Ctx) error
	Publish(c *fiber.Ctx) error
	Unpublish(c *fiber.Ctx) error
	Submit(c *fiber.Ctx) error
	ListSubmissions(c *fiber.Ctx) error
	GetSubmission(c *fiber.Ctx) error
	DeleteSubmission(c *fiber.Ctx) error
	Export(c *fiber.Ctx) error
	ListExports(c *fiber.Ctx) error
	Embed(c *fiber.Ctx) error
	Analytics(c *fiber.Ctx) error
}

// formController exposes form management, submission and reporting endpoints.
type formController struct {
	forms     service.FormService
	analytics service.AnalyticsCollector
	now       func() time.Time
}

// NewFormController builds a FormController.
func NewFormController(forms service.FormService, analytics service.AnalyticsCollector) FormController {
	return &formController{forms: forms, analytics: analytics, now: time.Now}
}

func (h *formController) List(c *fiber.Ctx) error {
	forms, err := h.forms.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(forms)
}

func (h *formController) Create(c *fiber.Ctx) error {
	var form model.Form
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}

	created, err := h.forms.Create(c.UserContext(), form)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *formController) Get(c *fiber.Ctx) error {
	form, err := h.forms.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(form)
}

func (h *formController) Update(c *fiber.Ctx) error {
	var update model.FormUpdate
	if err := c.BodyParser(&update); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}

	form, err := h.forms.Update(c.UserContext(), c.Params("id"), update)
	if err != nil {
		return err
	}
	return c.JSON(form)
}

func (h *formController) Delete(c *fiber.Ctx) error {
	if err := h.forms.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *formController) Publish(c *fiber.Ctx) error {
	form, err := h.forms.Publish(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(form)
}

func (h *formController) Unpublish(c *fiber.Ctx) error {
	form, err := h.forms.Unpublish(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(form)
}

// Submit accepts a visitor's answers. Client details are taken from the
// request headers.
func (h *formController) Submit(c *fiber.Ctx) error {
	var req model.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json payload")
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}

	meta := model.SubmissionMetadata{
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Referrer:  c.Get(fiber.HeaderReferer),
		Country:   c.Get("CF-IPCountry"),
	}
	res, err := h.forms.Submit(c.UserContext(), c.Params("id"), req.Data, meta)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *formController) ListSubmissions(c *fiber.Ctx) error {
	limit := 0
	if raw := utils.Trim(c.Query("limit"), ' '); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	subs, err := h.forms.ListSubmissions(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(subs)
}

func (h *formController) GetSubmission(c *fiber.Ctx) error {
	sub, err := h.forms.GetSubmission(c.UserContext(), c.Params("id"), c.Params("subId"))
	if err != nil {
		return err
	}
	return c.JSON(sub)
}

func (h *formController) DeleteSubmission(c *fiber.Ctx) error {
	if err := h.forms.DeleteSubmission(c.UserContext(), c.Params("id"), c.Params("subId")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *formController) Export(c *fiber.Ctx) error {
	id := c.Params("id")
	out, err := h.forms.Export(c.UserContext(), id)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="form-`+id+`-submissions.csv"`)
	return c.Send(out)
}

func (h *formController) ListExports(c *fiber.Ctx) error {
	objs, err := h.forms.ListExports(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(objs)
}

func (h *formController) Embed(c *fiber.Ctx) error {
	page, err := h.forms.Embed(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(page)
}

// Analytics reports on [startDate, endDate]. The range defaults to the last
// 30 days ending today.
func (h *formController) Analytics(c *fiber.Ctx) error {
	end := h.now().UTC()
	if raw := utils.Trim(c.Query("endDate"), ' '); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid endDate, expected YYYY-MM-DD")
		}
		end = parsed
	}
	start := end.AddDate(0, 0, -(defaultAnalyticsDays - 1))
	if raw := utils.Trim(c.Query("startDate"), ' '); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid startDate, expected YYYY-MM-DD")
		}
		start = parsed
	}

	form, err := h.forms.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	report, err := h.analytics.GetAnalytics(c.UserContext(), form.ID, start, end, form.Name, form.Fields)
	if err != nil {
		return err
	}
	return c.JSON(report)
}
