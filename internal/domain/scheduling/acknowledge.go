package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/outbox"
)

const (
	KindSMS             = "sms.send"
	KindCallbackRequest = "callback_request.create"

	sideEffectTimeout = 15 * time.Second
)

type SuggestionInput struct {
	DoctorID string `json:"doctorId"`
	Date     string `json:"date"`
	TimeSlot string `json:"timeSlot"`
}

// AcknowledgeRequest is the body of the cancel endpoint. The single
// suggested* fields are the older form of Suggestions.
type AcknowledgeRequest struct {
	Reason            string            `json:"reason"`
	Suggestions       []SuggestionInput `json:"suggestions"`
	SuggestedDoctorID string            `json:"suggestedDoctorId"`
	SuggestedDate     string            `json:"suggestedDate"`
	SuggestedTimeSlot string            `json:"suggestedTimeSlot"`
	NotifyNow         bool              `json:"notifyNow"`
	Message           string            `json:"message"`
}

func (r *AcknowledgeRequest) hasLegacy() bool {
	return r.SuggestedDoctorID != "" || r.SuggestedDate != "" || r.SuggestedTimeSlot != ""
}

type AcknowledgeResult struct {
	ID           uuid.UUID     `json:"_id"`
	Status       Status        `json:"status"`
	Cancellation *Cancellation `json:"cancellation"`
}

// CallbackPayload is the outbox payload for a staff callback.
type CallbackPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// SMSPayload is the outbox payload for a patient text.
type SMSPayload struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	To            string    `json:"to"`
	Body          string    `json:"body"`
}

// CallbackCreator opens a callback request for staff follow-up.
type CallbackCreator interface {
	CreateCallback(ctx context.Context, name, phone string) error
}

// checkFuture validates one suggestion. Suggestions without both a date
// and a slot are stored as given.
func (s *Service) checkFuture(date, timeSlot string) error {
	if date == "" || timeSlot == "" {
		if date != "" {
			_, err := ParseDate(date)
			return err
		}
		return nil
	}
	ok, err := s.validator.IsFutureSlot(date, timeSlot)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPastOrInvalidSlot
	}
	return nil
}

func normalizeSuggestion(in SuggestionInput) (Suggestion, error) {
	out := Suggestion{TimeSlot: strings.TrimSpace(in.TimeSlot)}
	if in.DoctorID != "" {
		id, err := uuid.Parse(in.DoctorID)
		if err != nil {
			return Suggestion{}, fmt.Errorf("%w: %q", ErrUnknownDoctor, in.DoctorID)
		}
		out.DoctorID = &id
	}
	if in.Date != "" {
		d, err := ParseDate(in.Date)
		if err != nil {
			return Suggestion{}, err
		}
		out.Date = d.Format(DateLayout)
	}
	return out, nil
}

// buildCancellation validates the request and produces the cancellation
// record. Nothing is written when it fails.
func (s *Service) buildCancellation(req *AcknowledgeRequest) (*Cancellation, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" && len(req.Suggestions) == 0 && !req.hasLegacy() {
		return nil, ErrMissingAcknowledgementInput
	}

	if err := s.checkFuture(req.SuggestedDate, req.SuggestedTimeSlot); err != nil {
		return nil, &SuggestionSlotError{Legacy: true, Err: err}
	}
	for i, sg := range req.Suggestions {
		if err := s.checkFuture(sg.Date, sg.TimeSlot); err != nil {
			return nil, &SuggestionSlotError{Index: i, Err: err}
		}
	}

	inputs := req.Suggestions
	if len(inputs) == 0 && req.hasLegacy() {
		inputs = []SuggestionInput{{
			DoctorID: req.SuggestedDoctorID,
			Date:     req.SuggestedDate,
			TimeSlot: req.SuggestedTimeSlot,
		}}
	}
	c := &Cancellation{Reason: req.Reason, Suggestions: make([]Suggestion, 0, len(inputs)), Notified: req.NotifyNow}
	for _, in := range inputs {
		sg, err := normalizeSuggestion(in)
		if err != nil {
			return nil, err
		}
		c.Suggestions = append(c.Suggestions, sg)
	}
	return c, nil
}

func acknowledgementMessage(status Status, c *Cancellation) string {
	msg := fmt.Sprintf("Your appointment has been acknowledged with status: %s.", status)
	if c.Reason != "" {
		msg += " Reason: " + c.Reason
	}
	if len(c.Suggestions) > 0 {
		msg += " Please check your dashboard for suggested reschedule times."
	}
	return msg
}

// smsBody prefers the caller's message and otherwise describes the
// cancellation.
func (s *Service) smsBody(req *AcknowledgeRequest, view *AppointmentView, c *Cancellation) string {
	if m := strings.TrimSpace(req.Message); m != "" {
		return m
	}
	var parts []string
	if c.Reason != "" {
		parts = append(parts, "Reason: "+c.Reason)
	}
	if len(c.Suggestions) > 0 {
		alts := make([]string, 0, len(c.Suggestions))
		for _, sg := range c.Suggestions {
			alt := sg.TimeSlot
			if sg.Date != "" {
				alt += " on " + sg.Date
			}
			alts = append(alts, alt)
		}
		parts = append(parts, "Suggested: "+strings.Join(alts, " | "))
	}
	body, err := s.templates.Render(notification.TemplateAppointmentAcknowledged, map[string]string{
		"patient_name": view.PatientName,
		"doctor_name":  view.DoctorName,
		"date":         view.Date,
		"details":      strings.Join(parts, ". "),
	})
	if err != nil {
		return strings.Join(parts, ". ")
	}
	return body
}

// Acknowledge moves an appointment to Acknowledged with a reason and
// reschedule suggestions. The status change, the patient notification and
// the queued side effects commit together; the side effects then get one
// attempt each and never fail the call.
func (s *Service) Acknowledge(ctx context.Context, id uuid.UUID, req AcknowledgeRequest) (*AcknowledgeResult, error) {
	c, err := s.buildCancellation(&req)
	if err != nil {
		return nil, err
	}

	var (
		a       *Appointment
		entries []*outbox.Entry
	)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.appts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		a.Status = StatusAcknowledged
		a.Cancellation = c
		a.HoldsSlot = s.holdsSlot(StatusAcknowledged)
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		if err := s.notifyPatient(ctx, a.PatientID, acknowledgementMessage(a.Status, c)); err != nil {
			return err
		}

		view, err := s.appts.GetView(ctx, id)
		if err != nil {
			return err
		}
		entries, err = s.queueSideEffects(ctx, &req, view, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, a)

	if s.dispatcher != nil && len(entries) > 0 {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		s.dispatcher.Dispatch(dctx, entries...)
		cancel()
	}

	s.logger.Info().Str("appointment_id", id.String()).Str("reason", c.Reason).
		Int("suggestions", len(c.Suggestions)).Bool("notify_now", req.NotifyNow).Msg("appointment acknowledged")

	final, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AcknowledgeResult{ID: final.ID, Status: final.Status, Cancellation: final.Cancellation}, nil
}

func (s *Service) queueSideEffects(ctx context.Context, req *AcknowledgeRequest, view *AppointmentView, c *Cancellation) ([]*outbox.Entry, error) {
	if s.outbox == nil {
		return nil, nil
	}
	var entries []*outbox.Entry

	name, phone := view.PatientName, view.PatientPhone
	if phone == "-" {
		phone = ""
	}
	cb, err := outbox.NewEntry(KindCallbackRequest, view.ID, CallbackPayload{Name: name, Phone: phone})
	if err != nil {
		return nil, err
	}
	entries = append(entries, cb)

	if req.NotifyNow {
		if phone == "" {
			s.logger.Warn().Str("appointment_id", view.ID.String()).Msg("no patient phone on file, skipping sms")
		} else {
			sms, err := outbox.NewEntry(KindSMS, view.ID, SMSPayload{
				AppointmentID: view.ID,
				To:            phone,
				Body:          s.smsBody(req, view, c),
			})
			if err != nil {
				return nil, err
			}
			entries = append(entries, sms)
		}
	}

	for _, e := range entries {
		if err := s.outbox.Enqueue(ctx, e); err != nil {
			return nil, fmt.Errorf("enqueue %s: %w", e.Kind, err)
		}
	}
	return entries, nil
}

// RegisterSideEffects installs the acknowledgement side-effect handlers.
func (s *Service) RegisterSideEffects(d *outbox.Dispatcher, callbacks CallbackCreator) {
	d.Register(KindCallbackRequest, func(ctx context.Context, e *outbox.Entry) error {
		var p CallbackPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		if err := callbacks.CreateCallback(ctx, p.Name, p.Phone); err != nil {
			return fmt.Errorf("create callback request: %w", err)
		}
		return nil
	})
	d.Register(KindSMS, s.deliverSMS)
}

// deliverSMS makes the single SMS attempt and records its outcome on the
// appointment. Without a provider the message is only logged.
func (s *Service) deliverSMS(ctx context.Context, e *outbox.Entry) error {
	var p SMSPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	log := s.logger.With().Str("appointment_id", p.AppointmentID.String()).Str("to", p.To).Logger()

	if !s.sms.Enabled() {
		log.Info().Str("body", p.Body).Msg("sms provider not configured, simulated sms")
		return nil
	}

	receipt, sendErr := s.sms.Send(ctx, p.To, p.Body)
	var result *DeliveryReceipt
	if sendErr != nil {
		result = &DeliveryReceipt{Provider: s.sms.Sender.Provider(), Error: sendErr.Error()}
		log.Warn().Err(sendErr).Msg("sms failed, falling back to log")
		log.Info().Str("body", p.Body).Msg("simulated sms")
	} else {
		sentAt := receipt.SentAt
		result = &DeliveryReceipt{
			Provider: receipt.Provider,
			SID:      receipt.SID,
			SentAt:   &sentAt,
			To:       receipt.To,
			Status:   receipt.Status,
		}
		log.Info().Str("sid", receipt.SID).Msg("sms sent")
	}

	if err := s.recordDelivery(ctx, p.AppointmentID, result, sendErr == nil); err != nil {
		return fmt.Errorf("record sms outcome: %w", err)
	}
	return sendErr
}

func (s *Service) recordDelivery(ctx context.Context, id uuid.UUID, receipt *DeliveryReceipt, delivered bool) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.Cancellation == nil {
			a.Cancellation = &Cancellation{Suggestions: []Suggestion{}}
		}
		a.Cancellation.Notified = delivered
		a.Cancellation.Notification = receipt
		return s.appts.Update(ctx, a)
	})
}
