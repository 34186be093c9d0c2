package validate

import (
	"testing"
)

type walkIn struct {
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Mobile   string `json:"mobile,omitempty" validate:"omitempty,phone10"`
	DoctorID string `json:"doctorId" validate:"required"`
}

func TestValidate_OK(t *testing.T) {
	v := New()
	if err := v.Validate(&walkIn{Name: "A", Phone: "1", DoctorID: "d"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_FieldsNamedByJSONTag(t *testing.T) {
	v := New()
	err := v.Validate(&walkIn{Name: "A"})
	fe, ok := AsFieldError(err)
	if !ok {
		t.Fatalf("expected *FieldError, got %T", err)
	}
	if !fe.Has("phone") || !fe.Has("doctorId") {
		t.Errorf("expected phone and doctorId, got %v", fe.Fields)
	}
	if fe.Has("name") {
		t.Error("name was set and should not be reported")
	}
	if !fe.Failed("doctorId", "required") {
		t.Error("expected doctorId to fail the required rule")
	}
}

func TestValidate_Phone10(t *testing.T) {
	v := New()
	base := walkIn{Name: "A", Phone: "1", DoctorID: "d"}

	bad := base
	bad.Mobile = "12345"
	fe, ok := AsFieldError(v.Validate(&bad))
	if !ok || !fe.Failed("mobile", "phone10") {
		t.Errorf("expected phone10 failure, got %v", fe)
	}

	good := base
	good.Mobile = "9876543210"
	if err := v.Validate(&good); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
