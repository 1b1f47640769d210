package checkout

import (
	"net/url"
	"strings"
)

// GatewayHandle is how the customer continues with the gateway after
// initialization: a Popup or a Redirect.
type GatewayHandle interface {
	gatewayHandle()
}

// Popup resumes the embedded widget with an access code.
type Popup struct {
	AccessCode string
}

// Redirect sends the browser to the gateway's hosted page.
type Redirect struct {
	URL string
}

func (Popup) gatewayHandle()    {}
func (Redirect) gatewayHandle() {}

// HandleFrom picks the continuation of an initialize response. An access
// code wins over an authorization URL.
func HandleFrom(resp *InitializeResponse) (GatewayHandle, error) {
	if code := strings.TrimSpace(resp.AccessCode); code != "" {
		return Popup{AccessCode: code}, nil
	}
	if u := strings.TrimSpace(resp.AuthorizationURL); u != "" {
		return Redirect{URL: u}, nil
	}
	return nil, ErrNoGatewayHandle
}

// SuccessPath is the page shown after a completed card payment.
func SuccessPath(reference, bookingID string) string {
	return "/bookings/success?reference=" + url.QueryEscape(reference) + "&booking_id=" + url.QueryEscape(bookingID)
}
