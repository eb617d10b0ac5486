package pilots

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/rocket-deliveries/internal/events"
	"github.com/example/rocket-deliveries/internal/models"
	"github.com/example/rocket-deliveries/internal/observability"
	"github.com/example/rocket-deliveries/internal/storage"
)

type Step string

const (
	StepAccount      Step = "account"
	StepProfile      Step = "profile"
	StepVerification Step = "verification"
	StepDone         Step = "done"
)

// SignupStep picks the onboarding step from the session pilot. A nil pilot
// has not created an account yet.
func SignupStep(p *models.Pilot, done bool) Step {
	if p == nil {
		return StepAccount
	}
	if done {
		return StepDone
	}
	if !p.ProfileComplete() {
		return StepProfile
	}
	return StepVerification
}

// SignupInput is the account step of the signup form.
type SignupInput struct {
	Email    string `validate:"required,email,max=255"`
	Password string `validate:"required,min=8,max=128"`
	Type     string `validate:"required,oneof=individual company"`
}

// Signup creates a pilot with a hashed password. Invalid input and taken
// emails come back as *ValidationError.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*models.Pilot, error) {
	in.Email = models.NormalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, formatValidation(err)
	}
	p, err := models.NewPilot(in.Email, in.Password, models.PilotType(in.Type))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreatePilot(ctx, p); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, newValidationError("An account with this email already exists.")
		}
		return nil, fmt.Errorf("create pilot: %w", err)
	}
	observability.PilotsSignedUp.Inc()
	s.publish(ctx, events.New(events.PilotSignedUp, p.ID))
	return p, nil
}

// CompleteProfile validates the profile step, creates the connected account
// and saves both on the pilot. If account creation fails nothing is saved,
// unless the account itself was created: then only its ID is recorded so a
// retry reuses it.
func (s *Service) CompleteProfile(ctx context.Context, p *models.Pilot, fields models.ProfileFields) error {
	profile, err := models.NewProfile(p.Type, fields)
	if err != nil {
		if errors.Is(err, models.ErrInvalidProfile) {
			return newValidationError(profileMessage(p.Type))
		}
		return err
	}

	updated := *p
	updated.ApplyProfile(profile)
	if updated.StripeAccountID == "" {
		accountID, err := s.platform.CreateAccount(ctx, &updated, profile)
		if err != nil {
			s.logger.Error("create connected account failed", "pilot_id", p.ID, "account_id", accountID, "err", err)
			if accountID != "" {
				s.keepAccount(ctx, p, accountID)
			}
			return err
		}
		updated.StripeAccountID = accountID
	}
	if err := s.store.UpdatePilot(ctx, &updated); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	*p = updated

	ev := events.New(events.PilotOnboarded, p.ID)
	ev.AccountID = p.StripeAccountID
	s.publish(ctx, ev)
	return nil
}

// keepAccount records a partially set up connected account on the pilot.
// Hosted onboarding collects whatever the account still lacks.
func (s *Service) keepAccount(ctx context.Context, p *models.Pilot, accountID string) {
	partial := *p
	partial.StripeAccountID = accountID
	if err := s.store.UpdatePilot(ctx, &partial); err != nil {
		s.logger.Error("record connected account failed", "pilot_id", p.ID, "account_id", accountID, "err", err)
		return
	}
	p.StripeAccountID = accountID
}

func profileMessage(t models.PilotType) string {
	if t == models.PilotCompany {
		return "Business name is required."
	}
	return "First and last name are required."
}

// Authenticate checks an email and password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.Pilot, error) {
	p, err := s.store.GetPilotByEmail(ctx, models.NormalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, err
	}
	if !p.ValidatePassword(password) {
		return nil, ErrInvalidCredentials
	}
	return p, nil
}
