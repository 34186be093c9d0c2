package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrInvalidRole    = errors.New("invalid role")
	ErrMissingField   = errors.New("required field missing")
	ErrInvalidPhone   = errors.New("phone must be 10 digits")
)

// User maps to the users table. Doctors, patients and admins share it.
type User struct {
	ID         uuid.UUID `db:"id" json:"_id"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email"`
	Phone      string    `db:"phone" json:"phone"`
	Role       string    `db:"role" json:"role"`
	Speciality string    `db:"speciality" json:"speciality"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

func ValidRole(role string) bool {
	switch role {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// DoctorInput is the add-doctor body.
type DoctorInput struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	Password   string `json:"password" validate:"required"`
	Speciality string `json:"speciality"`
}

// DoctorUpdate carries the edit-doctor body. Empty fields keep their
// stored value.
type DoctorUpdate struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Speciality string `json:"speciality"`
}

// PatientUpdate carries the edit-patient body. Email and phone keep their
// stored value when empty.
type PatientUpdate struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email"`
	Phone string `json:"phone" validate:"omitempty,phone10"`
}

// SeedUser is one entry of a user import file. Password may be plain text
// or an existing bcrypt hash.
type SeedUser struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Speciality string `json:"speciality"`
}
