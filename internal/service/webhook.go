package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"form-analytics-service/internal/logger"
	"form-analytics-service/internal/model"
)

// WebhookPayload is POSTed to a form's webhook URL after each submission.
type WebhookPayload struct {
	Event      string           `json:"event"`
	FormID     string           `json:"formId"`
	FormName   string           `json:"formName"`
	Submission model.Submission `json:"submission"`
}

// WebhookNotifier delivers submission notifications. Delivery is best effort:
// Notify returns immediately and failures are only logged.
type WebhookNotifier interface {
	Notify(url string, payload WebhookPayload)
	Wait()
}

type webhookNotifier struct {
	log     *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewWebhookNotifier builds a notifier whose requests give up after timeout.
func NewWebhookNotifier(log *logger.Logger, timeout time.Duration) WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &webhookNotifier{log: log.With("component", "WebhookNotifier"), timeout: timeout}
}

func (n *webhookNotifier) Notify(url string, payload WebhookPayload) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.send(url, payload); err != nil {
			n.log.Warn("webhook delivery failed", "form_id", payload.FormID, "url", url, "error", err)
			return
		}
		n.log.Debug("webhook delivered", "form_id", payload.FormID, "submission_id", payload.Submission.ID)
	}()
}

// Wait blocks until in-flight deliveries finish.
func (n *webhookNotifier) Wait() {
	n.wg.Wait()
}

func (n *webhookNotifier) send(url string, payload WebhookPayload) error {
	agent := fiber.Post(url).
		JSON(payload).
		UserAgent("form-analytics-webhook/1.0").
		Timeout(n.timeout)

	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return errs[0]
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("unexpected status %d", code)
	}
	return nil
}
