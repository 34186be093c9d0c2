package scheduling

import "errors"

var (
	ErrMissingField                = errors.New("missing required field")
	ErrInvalidDate                 = errors.New("invalid date")
	ErrInvalidSlotFormat           = errors.New("invalid time slot format")
	ErrPastOrInvalidSlot           = errors.New("date and time slot must be in the future")
	ErrUnknownSlot                 = errors.New("time slot is not in the clinic catalog")
	ErrUnknownDoctor               = errors.New("unknown doctor")
	ErrUnknownPatient              = errors.New("unknown patient")
	ErrSlotConflict                = errors.New("time slot already booked")
	ErrInvalidStatus               = errors.New("invalid status value")
	ErrMissingAcknowledgementInput = errors.New("reason or suggestion required")
	ErrInvalidSuggestionSlot       = errors.New("suggested slot must be in the future")
	ErrAppointmentNotFound         = errors.New("appointment not found")
)

// SuggestionSlotError identifies which suggestion failed validation. Legacy
// is set when the single suggestedDate/suggestedTimeSlot pair was at fault.
type SuggestionSlotError struct {
	Legacy bool
	Index  int
	Err    error
}

func (e *SuggestionSlotError) Error() string {
	if e.Err != nil {
		return ErrInvalidSuggestionSlot.Error() + ": " + e.Err.Error()
	}
	return ErrInvalidSuggestionSlot.Error()
}

func (e *SuggestionSlotError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidSuggestionSlot, e.Err}
	}
	return []error{ErrInvalidSuggestionSlot}
}
