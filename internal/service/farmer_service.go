package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"farm-market/internal/models"
	"farm-market/internal/store"
	"farm-market/internal/util"

	"go.uber.org/zap"
)

// Profile completion steps.
const (
	StepRegistered  = 1
	StepFarmDetails = 2
	StepLocation    = 3
	StepBankAccount = 4
)

// Sealer encrypts payout details at rest. *auth.Sealer implements it.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// FarmerService manages farmer profiles.
type FarmerService struct {
	store  *store.Store
	sealer Sealer
	logger *zap.Logger
	now    Clock
}

func NewFarmerService(store *store.Store, sealer Sealer) *FarmerService {
	return &FarmerService{
		store:  store,
		sealer: sealer,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// FarmerProfile is a farmer with its owning account.
type FarmerProfile struct {
	*models.Farmer
	Email    string  `json:"email"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone"`
}

// ForUser returns the farmer profile of a farmer account.
func (s *FarmerService) ForUser(ctx context.Context, userID string) (*models.Farmer, error) {
	farmer, err := s.store.GetFarmerByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Forbidden("farmer profile not found")
	}
	return farmer, err
}

// Profile returns the farmer's profile with account details.
func (s *FarmerService) Profile(ctx context.Context, userID string) (*FarmerProfile, error) {
	farmer, err := s.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &FarmerProfile{Farmer: farmer, Email: user.Email, FullName: user.FullName, Phone: user.Phone}, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func set(v *string) bool {
	return v != nil && *v != ""
}

// UpdateFarmDetails applies the present fields and advances the profile
// completion step.
func (s *FarmerService) UpdateFarmDetails(ctx context.Context, userID string, d models.FarmDetails) (*FarmerProfile, error) {
	ctx, span := util.StartSpan(ctx, "FarmerService.UpdateFarmDetails")
	defer span.End()

	farmer, err := s.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if d.FarmName != nil {
		farmer.FarmName = trimmed(d.FarmName)
	}
	if d.FarmDescription != nil {
		farmer.FarmDescription = trimmed(d.FarmDescription)
	}
	if d.FarmStreet != nil {
		farmer.FarmStreet = trimmed(d.FarmStreet)
	}
	if d.FarmCity != nil {
		farmer.FarmCity = trimmed(d.FarmCity)
	}
	if d.FarmState != nil {
		farmer.FarmState = trimmed(d.FarmState)
	}
	if d.FarmZipCode != nil {
		farmer.FarmZipCode = trimmed(d.FarmZipCode)
	}
	if d.FarmingPractices != nil {
		practices := models.StringList{}
		seen := map[string]bool{}
		for _, p := range d.FarmingPractices {
			if !models.FarmingPractice(p).Valid() {
				return nil, Validation("invalid farming practice %q", p)
			}
			if !seen[p] {
				seen[p] = true
				practices = append(practices, p)
			}
		}
		farmer.FarmingPractices = practices
	}

	if set(farmer.FarmName) && farmer.ProfileCompletionStep < StepFarmDetails {
		farmer.ProfileCompletionStep = StepFarmDetails
	}
	location := set(farmer.FarmStreet) && set(farmer.FarmCity) && set(farmer.FarmState) && set(farmer.FarmZipCode)
	if location && farmer.ProfileCompletionStep >= StepFarmDetails && farmer.ProfileCompletionStep < StepLocation {
		farmer.ProfileCompletionStep = StepLocation
	}
	farmer.ProfileCompleted = set(farmer.FarmName) && set(farmer.FarmDescription) && location &&
		len(farmer.FarmingPractices) > 0

	if err := s.store.UpdateFarmer(ctx, farmer, s.now()); err != nil {
		return nil, err
	}
	s.logger.Info("Farm details updated",
		zap.String("farmer_id", farmer.ID),
		zap.Int("step", farmer.ProfileCompletionStep),
		zap.Bool("completed", farmer.ProfileCompleted))

	return s.Profile(ctx, userID)
}

// BankAccountInput is the full payout account; saving replaces any
// previous one.
type BankAccountInput struct {
	AccountHolderName string                 `json:"account_holder_name"`
	AccountNumber     string                 `json:"account_number"`
	RoutingNumber     string                 `json:"routing_number"`
	BankName          *string                `json:"bank_name"`
	AccountType       models.BankAccountType `json:"account_type"`
}

func digitsOnly(v string) bool {
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return v != ""
}

func (in *BankAccountInput) validate() error {
	in.AccountHolderName = strings.TrimSpace(in.AccountHolderName)
	if n := len([]rune(in.AccountHolderName)); n < 2 || n > 200 {
		return Validation("account_holder_name must be between 2 and 200 characters")
	}
	if !digitsOnly(in.AccountNumber) {
		return Validation("Account number must contain only digits")
	}
	if len(in.AccountNumber) < 4 || len(in.AccountNumber) > 17 {
		return Validation("account_number must be between 4 and 17 digits")
	}
	if len(in.RoutingNumber) != 9 || !digitsOnly(in.RoutingNumber) {
		return Validation("Routing number must be exactly 9 digits")
	}
	in.BankName = trimmed(in.BankName)
	if in.BankName != nil && len([]rune(*in.BankName)) > 100 {
		return Validation("bank_name must be at most 100 characters")
	}
	if in.AccountType == "" {
		in.AccountType = models.AccountChecking
	}
	if !in.AccountType.Valid() {
		return Validation("account_type must be checking or savings")
	}
	return nil
}

// BankAccount returns the farmer's payout account with the numbers masked.
func (s *FarmerService) BankAccount(ctx context.Context, userID string) (*models.BankAccount, error) {
	farmer, err := s.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	acct, err := s.store.GetBankAccount(ctx, farmer.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("bank account not found")
	}
	return acct, err
}

// samePayee reports whether acct already holds the given numbers. A stored
// value that no longer opens counts as different.
func (s *FarmerService) samePayee(acct *models.BankAccount, in BankAccountInput) bool {
	number, err := s.sealer.Open(acct.AccountNumberEncrypted)
	if err != nil {
		return false
	}
	routing, err := s.sealer.Open(acct.RoutingNumberEncrypted)
	if err != nil {
		return false
	}
	return number == in.AccountNumber && routing == in.RoutingNumber
}

// SaveBankAccount stores the payout account sealed. Changing either number
// drops the verified flag. The first save advances profile completion.
func (s *FarmerService) SaveBankAccount(ctx context.Context, userID string, in BankAccountInput) (*models.BankAccount, error) {
	ctx, span := util.StartSpan(ctx, "FarmerService.SaveBankAccount")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}
	farmer, err := s.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	acct, err := s.store.GetBankAccount(ctx, farmer.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		acct = &models.BankAccount{FarmerID: farmer.ID}
	case err != nil:
		return nil, err
	default:
		acct.IsVerified = acct.IsVerified && s.samePayee(acct, in)
	}

	if acct.AccountNumberEncrypted, err = s.sealer.Seal(in.AccountNumber); err != nil {
		return nil, err
	}
	if acct.RoutingNumberEncrypted, err = s.sealer.Seal(in.RoutingNumber); err != nil {
		return nil, err
	}
	acct.AccountHolderName = in.AccountHolderName
	acct.AccountLastFour = in.AccountNumber[len(in.AccountNumber)-4:]
	acct.BankName = in.BankName
	acct.AccountType = in.AccountType

	if err := s.store.SaveBankAccount(ctx, acct, s.now()); err != nil {
		return nil, err
	}

	if farmer.ProfileCompletionStep == StepLocation {
		farmer.ProfileCompletionStep = StepBankAccount
		if err := s.store.UpdateFarmer(ctx, farmer, s.now()); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Bank account saved",
		zap.String("farmer_id", farmer.ID),
		zap.String("last_four", acct.AccountLastFour),
		zap.Bool("verified", acct.IsVerified))
	return s.store.GetBankAccount(ctx, farmer.ID)
}

func (s *FarmerService) DeleteBankAccount(ctx context.Context, userID string) error {
	farmer, err := s.ForUser(ctx, userID)
	if err != nil {
		return err
	}
	err = s.store.DeleteBankAccount(ctx, farmer.ID)
	if errors.Is(err, store.ErrNotFound) {
		return NotFound("bank account not found")
	}
	return err
}

// PayoutDetails opens the stored account and routing numbers for a payout.
func (s *FarmerService) PayoutDetails(ctx context.Context, farmerID string) (accountNumber, routingNumber string, err error) {
	acct, err := s.store.GetBankAccount(ctx, farmerID)
	if errors.Is(err, store.ErrNotFound) {
		return "", "", NotFound("bank account not found")
	}
	if err != nil {
		return "", "", err
	}
	if accountNumber, err = s.sealer.Open(acct.AccountNumberEncrypted); err != nil {
		return "", "", err
	}
	if routingNumber, err = s.sealer.Open(acct.RoutingNumberEncrypted); err != nil {
		return "", "", err
	}
	return accountNumber, routingNumber, nil
}
