// Package notification delivers outbound SMS for appointment workflows. The
// provider is optional: an unconfigured capability means messages are logged
// rather than sent.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	twilio "github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

var ErrSMSNotConfigured = errors.New("sms provider not configured")

// Receipt is what a provider reports for an accepted message.
type Receipt struct {
	Provider string    `json:"provider"`
	SID      string    `json:"sid,omitempty"`
	Status   string    `json:"status,omitempty"`
	To       string    `json:"to"`
	SentAt   time.Time `json:"sent_at"`
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	Provider() string
	SendSMS(ctx context.Context, to, body string) (*Receipt, error)
}

// SMSCapability is passed explicitly to workflows that may text a patient.
// A zero value is a valid, disabled capability.
type SMSCapability struct {
	Sender SMSSender
}

func (c SMSCapability) Enabled() bool { return c.Sender != nil }

// Send dispatches once through the configured sender.
func (c SMSCapability) Send(ctx context.Context, to, body string) (*Receipt, error) {
	if c.Sender == nil {
		return nil, ErrSMSNotConfigured
	}
	return c.Sender.SendSMS(ctx, to, body)
}

// ---------------------------------------------------------------------------
// Twilio
// ---------------------------------------------------------------------------

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender sends SMS through the Twilio Messages API.
type TwilioSender struct {
	api  messageCreator
	from string
	now  func() time.Time
}

// NewTwilioSender builds a sender from account credentials and a sending
// number.
func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{api: client.Api, from: from, now: time.Now}
}

func (s *TwilioSender) Provider() string { return "twilio" }

// SendSMS makes one Messages API call. The call is abandoned if ctx ends
// first; the provider may still deliver it.
func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) (*Receipt, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	type result struct {
		msg *twilioApi.ApiV2010Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := s.api.CreateMessage(params)
		done <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("twilio send: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("twilio send: %w", r.err)
		}
		receipt := &Receipt{Provider: s.Provider(), To: to, SentAt: s.now().UTC()}
		if r.msg != nil {
			receipt.SID = deref(r.msg.Sid)
			receipt.Status = deref(r.msg.Status)
		}
		return receipt, nil
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ---------------------------------------------------------------------------
// Test double
// ---------------------------------------------------------------------------

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

func (m *MockSMSSender) Provider() string { return "mock" }

// SendSMS records the call and optionally returns an error.
func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return nil, errors.New(m.FailError)
	}
	return &Receipt{
		Provider: m.Provider(),
		SID:      fmt.Sprintf("SM%04d", len(m.calls)),
		Status:   "queued",
		To:       to,
		SentAt:   time.Now().UTC(),
	}, nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

const TemplateAppointmentAcknowledged = "appointment-acknowledged"

// TemplateEngine renders {{placeholder}} message bodies.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]string
}

// NewTemplateEngine creates an engine with the built-in templates.
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{templates: map[string]string{
		TemplateAppointmentAcknowledged: "Hello {{patient_name}}, your appointment with {{doctor_name}} on {{date}} " +
			"has been acknowledged/cancelled by the clinic. {{details}}",
	}}
}

// Register adds or replaces a template body.
func (e *TemplateEngine) Register(id, body string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[id] = body
}

// Render substitutes data into the template. Unknown placeholders are left
// empty.
func (e *TemplateEngine) Render(id string, data map[string]string) (string, error) {
	e.mu.RLock()
	body, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %q not found", id)
	}

	var b strings.Builder
	for {
		start := strings.Index(body, "{{")
		if start < 0 {
			b.WriteString(body)
			break
		}
		end := strings.Index(body[start:], "}}")
		if end < 0 {
			b.WriteString(body)
			break
		}
		b.WriteString(body[:start])
		b.WriteString(data[strings.TrimSpace(body[start+2:start+end])])
		body = body[start+end+2:]
	}
	return strings.TrimSpace(b.String()), nil
}
