package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/chinda73971177/soc/internal/model"
)

const twilioAPIBase = "https://api.twilio.com"

// WhatsApp delivers notifications through the Twilio WhatsApp messaging API.
type WhatsApp struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	to         string
	client     *http.Client
}

// NewWhatsApp creates a WhatsApp channel, or nil when any Twilio credential
// or endpoint number is missing.
func NewWhatsApp(accountSID, authToken, from, to string) *WhatsApp {
	if accountSID == "" || authToken == "" || from == "" || to == "" {
		return nil
	}
	return &WhatsApp{
		baseURL:    twilioAPIBase,
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		to:         to,
		client:     http.DefaultClient,
	}
}

func (w *WhatsApp) Name() string { return "whatsapp" }

// Send posts one Messages call for the alert.
func (w *WhatsApp) Send(ctx context.Context, alert model.Alert) error {
	form := url.Values{}
	form.Set("From", "whatsapp:"+w.from)
	form.Set("To", "whatsapp:"+w.to)
	form.Set("Body", formatAlert(alert))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", w.baseURL, w.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(w.accountSID, w.authToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("twilio API returned status %d", resp.StatusCode)
	}
	return nil
}
