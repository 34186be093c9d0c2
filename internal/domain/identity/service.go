package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var tenDigits = regexp.MustCompile(`^\d{10}$`)

// DefaultTestDoctor is the account created by "seed doctor".
var DefaultTestDoctor = SeedUser{
	Name:     "Test Doctor",
	Email:    "drtest@example.com",
	Phone:    "1111111111",
	Password: "password123",
	Role:     RoleDoctor,
}

type Service struct {
	users      UserRepository
	bcryptCost int
	logger     zerolog.Logger
}

func NewService(users UserRepository, logger zerolog.Logger) *Service {
	return &Service{users: users, bcryptCost: bcrypt.DefaultCost, logger: logger}
}

// hashPassword hashes plain text. A value that already is a bcrypt hash is
// returned unchanged.
func (s *Service) hashPassword(password string) (string, error) {
	if _, err := bcrypt.Cost([]byte(password)); err == nil {
		return password, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// -- Doctors --

func (s *Service) AddDoctor(ctx context.Context, in DoctorInput) (*User, error) {
	u := &User{
		Name:       strings.TrimSpace(in.Name),
		Email:      strings.TrimSpace(in.Email),
		Phone:      strings.TrimSpace(in.Phone),
		Speciality: strings.TrimSpace(in.Speciality),
		Role:       RoleDoctor,
	}
	if u.Name == "" || u.Email == "" || u.Phone == "" || in.Password == "" {
		return nil, ErrMissingField
	}

	existing, err := s.users.FindByEmail(ctx, u.Email, RoleDoctor)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u, hash); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("doctor added")
	return u, nil
}

func (s *Service) ListDoctors(ctx context.Context) ([]*User, error) {
	return s.users.List(ctx, RoleDoctor)
}

func (s *Service) EditDoctor(ctx context.Context, id uuid.UUID, in DoctorUpdate) (*User, error) {
	u, err := s.users.GetByID(ctx, id, RoleDoctor)
	if err != nil {
		return nil, err
	}
	setIfPresent(&u.Name, in.Name)
	setIfPresent(&u.Email, in.Email)
	setIfPresent(&u.Phone, in.Phone)
	setIfPresent(&u.Speciality, in.Speciality)
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.users.Delete(ctx, id, RoleDoctor)
}

func setIfPresent(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// -- Patients --

func (s *Service) ListPatients(ctx context.Context) ([]*User, error) {
	return s.users.List(ctx, RolePatient)
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, in PatientUpdate) (*User, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}
	if in.Phone != "" && !tenDigits.MatchString(in.Phone) {
		return nil, ErrInvalidPhone
	}
	u, err := s.users.GetByID(ctx, id, RolePatient)
	if err != nil {
		return nil, err
	}
	setIfPresent(&u.Name, in.Name)
	setIfPresent(&u.Email, in.Email)
	setIfPresent(&u.Phone, in.Phone)
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.users.Delete(ctx, id, RolePatient)
}

// -- Seeding --

// ImportResult lists the emails created and skipped by ImportUsers.
type ImportResult struct {
	Created []string
	Skipped []string
}

// ImportUsers creates each user whose email is not registered under any
// role. Existing users are left untouched.
func (s *Service) ImportUsers(ctx context.Context, users []SeedUser) (*ImportResult, error) {
	res := &ImportResult{}
	for _, in := range users {
		email := strings.TrimSpace(in.Email)
		if email == "" || in.Name == "" || in.Password == "" {
			return res, fmt.Errorf("%w: import entry %q", ErrMissingField, email)
		}
		role := in.Role
		if role == "" {
			role = RoleAdmin
		}
		if !ValidRole(role) {
			return res, fmt.Errorf("%w: %q for %s", ErrInvalidRole, role, email)
		}

		existing, err := s.users.FindByEmail(ctx, email, "")
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return res, err
		}
		if existing != nil {
			s.logger.Info().Str("email", email).Msg("user already exists")
			res.Skipped = append(res.Skipped, email)
			continue
		}

		hash, err := s.hashPassword(in.Password)
		if err != nil {
			return res, err
		}
		u := &User{Name: in.Name, Email: email, Phone: in.Phone, Role: role, Speciality: in.Speciality}
		if err := s.users.Create(ctx, u, hash); err != nil {
			return res, fmt.Errorf("import %s: %w", email, err)
		}
		s.logger.Info().Str("email", email).Str("role", role).Msg("user imported")
		res.Created = append(res.Created, email)
	}
	return res, nil
}

// EnsureDoctor creates the doctor account, or resets the password and role
// of the user already holding the email. It reports whether it created.
func (s *Service) EnsureDoctor(ctx context.Context, in SeedUser) (*User, bool, error) {
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.users.FindByEmail(ctx, in.Email, RoleDoctor)
	if errors.Is(err, ErrUserNotFound) {
		existing, err = s.users.FindByEmail(ctx, in.Email, "")
	}
	switch {
	case err == nil:
		if err := s.users.SetCredentials(ctx, existing.ID, RoleDoctor, hash); err != nil {
			return nil, false, err
		}
		existing.Role = RoleDoctor
		s.logger.Info().Str("email", in.Email).Msg("doctor password updated")
		return existing, false, nil
	case !errors.Is(err, ErrUserNotFound):
		return nil, false, err
	}

	u := &User{Name: in.Name, Email: in.Email, Phone: in.Phone, Role: RoleDoctor, Speciality: in.Speciality}
	if err := s.users.Create(ctx, u, hash); err != nil {
		return nil, false, err
	}
	s.logger.Info().Str("email", in.Email).Msg("doctor created")
	return u, true, nil
}
