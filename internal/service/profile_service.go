package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"farm-market/internal/models"
	"farm-market/internal/store"
	"farm-market/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var zipPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// ProfileService manages a user's own account details, delivery addresses,
// saved payment methods and preferences.
type ProfileService struct {
	store  *store.Store
	logger *zap.Logger
	now    Clock
}

func NewProfileService(store *store.Store) *ProfileService {
	return &ProfileService{
		store:  store,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

func (s *ProfileService) WithClock(now Clock) *ProfileService {
	s.now = now
	return s
}

// UserProfile is the account with everything attached to it.
type UserProfile struct {
	*models.User
	DietaryPreferences       models.StringList               `json:"dietary_preferences"`
	CommunicationPreferences models.CommunicationPreferences `json:"communication_preferences"`
	Addresses                []models.Address                `json:"addresses"`
	PaymentMethods           []models.PaymentMethod          `json:"payment_methods"`
}

type ProfileUpdate struct {
	FullName    *string `json:"full_name"`
	Phone       *string `json:"phone"`
	DateOfBirth *string `json:"date_of_birth"`
}

// AddressInput creates or partially updates an address. Street, city, state
// and zip code are required on create.
type AddressInput struct {
	Label                *string `json:"label"`
	Street               *string `json:"street"`
	City                 *string `json:"city"`
	State                *string `json:"state"`
	ZipCode              *string `json:"zip_code"`
	DeliveryInstructions *string `json:"delivery_instructions"`
	IsDefault            *bool   `json:"is_default"`
}

type PaymentMethodInput struct {
	PaymentType models.PaymentType `json:"payment_type"`
	Provider    *string            `json:"provider"`
	CardNumber  *string            `json:"card_number"`
	ExpiryMonth *int               `json:"expiry_month"`
	ExpiryYear  *int               `json:"expiry_year"`
	IsDefault   bool               `json:"is_default"`
}

type PreferencesInput struct {
	DietaryPreferences       []string                         `json:"dietary_preferences"`
	CommunicationPreferences *models.CommunicationPreferences `json:"communication_preferences"`
}

func (s *ProfileService) user(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("user not found")
	}
	return user, err
}

func (s *ProfileService) preferences(ctx context.Context, userID string) (*models.Preferences, error) {
	prefs, err := s.store.GetPreferences(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.DefaultPreferences(userID), nil
	}
	return prefs, err
}

func (s *ProfileService) Profile(ctx context.Context, userID string) (*UserProfile, error) {
	ctx, span := util.StartSpan(ctx, "ProfileService.Profile")
	defer span.End()

	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefs, err := s.preferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	addresses, err := s.store.ListAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}
	methods, err := s.store.ListPaymentMethods(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserProfile{
		User:                     user,
		DietaryPreferences:       prefs.Dietary,
		CommunicationPreferences: prefs.Communication,
		Addresses:                addresses,
		PaymentMethods:           methods,
	}, nil
}

// UpdateProfile applies the present fields. An empty phone or birth date
// clears it.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*UserProfile, error) {
	ctx, span := util.StartSpan(ctx, "ProfileService.UpdateProfile")
	defer span.End()

	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.FullName != nil {
		name := strings.Join(strings.Fields(*in.FullName), " ")
		if utf8.RuneCountInString(name) < 2 {
			return nil, Validation("Full name must be at least 2 characters")
		}
		if utf8.RuneCountInString(name) > 255 {
			return nil, Validation("Full name must be at most 255 characters")
		}
		user.FullName = name
	}
	if in.Phone != nil {
		phone := trimmed(in.Phone)
		if phone != nil && len(*phone) > 20 {
			return nil, Validation("phone must be at most 20 characters")
		}
		user.Phone = phone
	}
	if in.DateOfBirth != nil {
		dob := trimmed(in.DateOfBirth)
		if dob != nil {
			born, err := time.Parse(time.DateOnly, *dob)
			if err != nil {
				return nil, Validation("date_of_birth must be formatted YYYY-MM-DD")
			}
			if !born.Before(s.now()) {
				return nil, Validation("date_of_birth must be in the past")
			}
		}
		user.DateOfBirth = dob
	}

	if err := s.store.UpdateUserProfile(ctx, user, s.now()); err != nil {
		return nil, err
	}
	s.logger.Info("Profile updated", zap.String("user_id", userID))
	return s.Profile(ctx, userID)
}

func (s *ProfileService) ListAddresses(ctx context.Context, userID string) ([]models.Address, error) {
	return s.store.ListAddresses(ctx, userID)
}

// requiredText trims v and checks its length is within [1, max].
func requiredText(field string, v *string, max int) (string, error) {
	t := trimmed(v)
	if t == nil {
		return "", Validation("%s is required", field)
	}
	if utf8.RuneCountInString(*t) > max {
		return "", Validation("%s must be at most %d characters", field, max)
	}
	return *t, nil
}

func optionalText(field string, v *string, max int) (*string, error) {
	t := trimmed(v)
	if t != nil && utf8.RuneCountInString(*t) > max {
		return nil, Validation("%s must be at most %d characters", field, max)
	}
	return t, nil
}

// applyAddress copies the present fields of in onto a. With create set the
// required fields must all be present.
func applyAddress(a *models.Address, in AddressInput, create bool) error {
	var err error
	required := []struct {
		name string
		in   *string
		dst  *string
		max  int
	}{
		{"street", in.Street, &a.Street, 255},
		{"city", in.City, &a.City, 100},
		{"state", in.State, &a.State, 50},
	}
	for _, f := range required {
		if f.in == nil && !create {
			continue
		}
		if *f.dst, err = requiredText(f.name, f.in, f.max); err != nil {
			return err
		}
	}
	if in.ZipCode != nil || create {
		zip := trimmed(in.ZipCode)
		if zip == nil || !zipPattern.MatchString(*zip) {
			return Validation("Invalid ZIP code format. Use 12345 or 12345-6789")
		}
		a.ZipCode = *zip
	}
	if in.Label != nil {
		if a.Label, err = optionalText("label", in.Label, 50); err != nil {
			return err
		}
	}
	if in.DeliveryInstructions != nil {
		if a.DeliveryInstructions, err = optionalText("delivery_instructions", in.DeliveryInstructions, 500); err != nil {
			return err
		}
	}
	if in.IsDefault != nil {
		a.IsDefault = *in.IsDefault
	}
	return nil
}

// AddAddress saves a delivery address. The first address becomes the
// default.
func (s *ProfileService) AddAddress(ctx context.Context, userID string, in AddressInput) (*models.Address, error) {
	ctx, span := util.StartSpan(ctx, "ProfileService.AddAddress")
	defer span.End()

	a := &models.Address{UserID: userID, CreatedAt: s.now()}
	if err := applyAddress(a, in, true); err != nil {
		return nil, err
	}
	existing, err := s.store.ListAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		a.IsDefault = true
	}
	if err := s.store.CreateAddress(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("Address added", zap.String("user_id", userID), zap.String("address_id", a.ID))
	return a, nil
}

func (s *ProfileService) UpdateAddress(ctx context.Context, userID, addressID string, in AddressInput) (*models.Address, error) {
	ctx, span := util.StartSpan(ctx, "ProfileService.UpdateAddress")
	defer span.End()

	a, err := s.store.GetAddress(ctx, userID, addressID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("Address not found")
	}
	if err != nil {
		return nil, err
	}
	if err := applyAddress(a, in, false); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAddress(ctx, a, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFound("Address not found")
		}
		return nil, err
	}
	return a, nil
}

func (s *ProfileService) DeleteAddress(ctx context.Context, userID, addressID string) error {
	err := s.store.DeactivateAddress(ctx, userID, addressID, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return NotFound("Address not found")
	}
	return err
}

func (s *ProfileService) ListPaymentMethods(ctx context.Context, userID string) ([]models.PaymentMethod, error) {
	return s.store.ListPaymentMethods(ctx, userID)
}

// tokenize stands in for the payment processor: the card number is reduced
// to an opaque token and its last four digits.
func tokenize(cardNumber string) (token, lastFour string) {
	if cardNumber == "" {
		return uuid.NewString(), ""
	}
	return "tok_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24], cardNumber[len(cardNumber)-4:]
}

func normalizeCardNumber(raw string) (string, error) {
	digits := strings.NewReplacer(" ", "", "-", "").Replace(raw)
	if len(digits) < 13 || len(digits) > 19 {
		return "", Validation("Invalid card number format")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", Validation("Invalid card number format")
		}
	}
	return digits, nil
}

// AddPaymentMethod tokenizes and saves a payment method. Only the token and
// the last four digits are kept.
func (s *ProfileService) AddPaymentMethod(ctx context.Context, userID string, in PaymentMethodInput) (*models.PaymentMethod, error) {
	ctx, span := util.StartSpan(ctx, "ProfileService.AddPaymentMethod")
	defer span.End()

	if !in.PaymentType.Valid() {
		return nil, Validation("payment_type must be card or digital_wallet")
	}
	provider, err := optionalText("provider", in.Provider, 50)
	if err != nil {
		return nil, err
	}

	var card string
	if in.CardNumber != nil && strings.TrimSpace(*in.CardNumber) != "" {
		if card, err = normalizeCardNumber(*in.CardNumber); err != nil {
			return nil, err
		}
	}

	now := s.now()
	if in.ExpiryMonth != nil && (*in.ExpiryMonth < 1 || *in.ExpiryMonth > 12) {
		return nil, Validation("expiry_month must be between 1 and 12")
	}
	if in.ExpiryYear != nil {
		if *in.ExpiryYear < now.Year() {
			return nil, Validation("card has expired")
		}
		if *in.ExpiryYear == now.Year() && in.ExpiryMonth != nil && *in.ExpiryMonth < int(now.Month()) {
			return nil, Validation("card has expired")
		}
	}

	token, lastFour := tokenize(card)
	m := &models.PaymentMethod{
		UserID:      userID,
		PaymentType: in.PaymentType,
		Provider:    provider,
		Token:       token,
		ExpiryMonth: in.ExpiryMonth,
		ExpiryYear:  in.ExpiryYear,
		IsDefault:   in.IsDefault,
		CreatedAt:   now,
	}
	if lastFour != "" {
		m.LastFour = &lastFour
	}

	existing, err := s.store.ListPaymentMethods(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		m.IsDefault = true
	}
	if err := s.store.CreatePaymentMethod(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info("Payment method added",
		zap.String("user_id", userID),
		zap.String("payment_method_id", m.ID),
		zap.String("type", string(m.PaymentType)))
	return m, nil
}

func (s *ProfileService) DeletePaymentMethod(ctx context.Context, userID, methodID string) error {
	err := s.store.DeactivatePaymentMethod(ctx, userID, methodID, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return NotFound("Payment method not found")
	}
	return err
}

// UpdatePreferences replaces whichever of the two preference sets is present.
func (s *ProfileService) UpdatePreferences(ctx context.Context, userID string, in PreferencesInput) (*models.Preferences, error) {
	ctx, span := util.StartSpan(ctx, "ProfileService.UpdatePreferences")
	defer span.End()

	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	prefs, err := s.preferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.DietaryPreferences != nil {
		dietary := models.StringList{}
		seen := map[string]bool{}
		for _, d := range in.DietaryPreferences {
			if !models.DietaryPreference(d).Valid() {
				return nil, Validation("invalid dietary preference %q", d)
			}
			if !seen[d] {
				seen[d] = true
				dietary = append(dietary, d)
			}
		}
		prefs.Dietary = dietary
	}
	if in.CommunicationPreferences != nil {
		prefs.Communication = *in.CommunicationPreferences
	}

	if err := s.store.SavePreferences(ctx, prefs, s.now()); err != nil {
		return nil, err
	}
	return prefs, nil
}
