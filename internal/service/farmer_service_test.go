package service

import (
	"context"
	"testing"

	"farm-market/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFarmerProfileSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	farmers := NewFarmerService(f.store, newSealer(t))

	user := &models.User{Email: "new@example.com", PasswordHash: "x", FullName: "Nia New", Role: models.RoleFarmer, CreatedAt: testNow}
	farmer := &models.Farmer{ProfileCompletionStep: StepRegistered, FarmingPractices: models.StringList{}, CreatedAt: testNow}
	require.NoError(t, f.store.CreateFarmerAccount(ctx, user, farmer))

	profile, err := farmers.UpdateFarmDetails(ctx, user.ID, models.FarmDetails{FarmName: strPtr("  Sunny Side ")})
	require.NoError(t, err)
	assert.Equal(t, StepFarmDetails, profile.ProfileCompletionStep)
	assert.Equal(t, "Sunny Side", *profile.FarmName)
	assert.False(t, profile.ProfileCompleted)
	assert.Equal(t, "new@example.com", profile.Email)

	profile, err = farmers.UpdateFarmDetails(ctx, user.ID, models.FarmDetails{
		FarmStreet:  strPtr("1 Orchard Lane"),
		FarmCity:    strPtr("Appleton"),
		FarmState:   strPtr("WI"),
		FarmZipCode: strPtr("54911"),
	})
	require.NoError(t, err)
	assert.Equal(t, StepLocation, profile.ProfileCompletionStep)
	assert.False(t, profile.ProfileCompleted)

	profile, err = farmers.UpdateFarmDetails(ctx, user.ID, models.FarmDetails{
		FarmDescription:  strPtr("Family orchard since 1952"),
		FarmingPractices: []string{"Organic", "Sustainable", "Organic"},
	})
	require.NoError(t, err)
	assert.True(t, profile.ProfileCompleted)
	assert.Equal(t, models.StringList{"Organic", "Sustainable"}, profile.FarmingPractices)
}

func TestFarmerProfileRejectsUnknownPractice(t *testing.T) {
	f := newFixture(t)
	farmers := NewFarmerService(f.store, newSealer(t))
	user, _ := seedFarmer(t, f.store, "practice@example.com")

	_, err := farmers.UpdateFarmDetails(context.Background(), user.ID, models.FarmDetails{
		FarmingPractices: []string{"Hydroponic"},
	})
	requireKind(t, err, KindValidation)
}

func TestFarmerProfileForConsumer(t *testing.T) {
	f := newFixture(t)
	farmers := NewFarmerService(f.store, newSealer(t))

	_, err := farmers.Profile(context.Background(), f.consumer.ID)
	e := requireKind(t, err, KindForbidden)
	assert.Equal(t, "farmer profile not found", e.Message)
}

func payoutAccount() BankAccountInput {
	return BankAccountInput{
		AccountHolderName: "Jane Grower",
		AccountNumber:     "123456789012",
		RoutingNumber:     "021000021",
		BankName:          strPtr("Prairie Bank"),
	}
}

func TestBankAccountSealedAtRest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	farmers := NewFarmerService(f.store, newSealer(t))
	user, farmer := seedFarmer(t, f.store, "payout@example.com")

	_, err := farmers.BankAccount(ctx, user.ID)
	requireKind(t, err, KindNotFound)

	acct, err := farmers.SaveBankAccount(ctx, user.ID, payoutAccount())
	require.NoError(t, err)
	assert.Equal(t, "9012", acct.AccountLastFour)
	assert.Equal(t, models.AccountChecking, acct.AccountType)
	assert.False(t, acct.IsVerified)
	assert.NotContains(t, acct.AccountNumberEncrypted, "123456789012")
	assert.NotContains(t, acct.RoutingNumberEncrypted, "021000021")

	number, routing, err := farmers.PayoutDetails(ctx, farmer.ID)
	require.NoError(t, err)
	assert.Equal(t, "123456789012", number)
	assert.Equal(t, "021000021", routing)

	_, _, err = farmers.PayoutDetails(ctx, "unknown")
	requireKind(t, err, KindNotFound)
}

func TestBankAccountChangeDropsVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	farmers := NewFarmerService(f.store, newSealer(t))
	user, farmer := seedFarmer(t, f.store, "verified@example.com")

	first, err := farmers.SaveBankAccount(ctx, user.ID, payoutAccount())
	require.NoError(t, err)
	first.IsVerified = true
	require.NoError(t, f.store.SaveBankAccount(ctx, first, testNow))

	rename := payoutAccount()
	rename.AccountHolderName = "Jane Q Grower"
	acct, err := farmers.SaveBankAccount(ctx, user.ID, rename)
	require.NoError(t, err)
	assert.True(t, acct.IsVerified, "same numbers keep the verified flag")
	assert.Equal(t, first.ID, acct.ID)

	moved := payoutAccount()
	moved.RoutingNumber = "111000025"
	acct, err = farmers.SaveBankAccount(ctx, user.ID, moved)
	require.NoError(t, err)
	assert.False(t, acct.IsVerified)
	assert.Equal(t, first.ID, acct.ID, "a farmer has one payout account")

	require.NoError(t, farmers.DeleteBankAccount(ctx, user.ID))
	requireKind(t, farmers.DeleteBankAccount(ctx, user.ID), KindNotFound)
	_, _, err = farmers.PayoutDetails(ctx, farmer.ID)
	requireKind(t, err, KindNotFound)
}

func TestBankAccountAdvancesCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	farmers := NewFarmerService(f.store, newSealer(t))
	user, farmer := seedFarmer(t, f.store, "steps@example.com")

	farmer.ProfileCompletionStep = StepLocation
	require.NoError(t, f.store.UpdateFarmer(ctx, farmer, testNow))

	_, err := farmers.SaveBankAccount(ctx, user.ID, payoutAccount())
	require.NoError(t, err)
	profile, err := farmers.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, StepBankAccount, profile.ProfileCompletionStep)
}

func TestBankAccountValidation(t *testing.T) {
	f := newFixture(t)
	farmers := NewFarmerService(f.store, newSealer(t))
	user, _ := seedFarmer(t, f.store, "invalid@example.com")

	tests := []struct {
		name   string
		mutate func(*BankAccountInput)
		msg    string
	}{
		{"holder", func(in *BankAccountInput) { in.AccountHolderName = " J " }, "account_holder_name must be between 2 and 200 characters"},
		{"letters", func(in *BankAccountInput) { in.AccountNumber = "12ab5678" }, "Account number must contain only digits"},
		{"short", func(in *BankAccountInput) { in.AccountNumber = "123" }, "account_number must be between 4 and 17 digits"},
		{"routing", func(in *BankAccountInput) { in.RoutingNumber = "02100002" }, "Routing number must be exactly 9 digits"},
		{"type", func(in *BankAccountInput) { in.AccountType = "brokerage" }, "account_type must be checking or savings"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := payoutAccount()
			tc.mutate(&in)
			_, err := farmers.SaveBankAccount(context.Background(), user.ID, in)
			e := requireKind(t, err, KindValidation)
			assert.Equal(t, tc.msg, e.Message)
		})
	}

	_, err := farmers.SaveBankAccount(context.Background(), f.consumer.ID, payoutAccount())
	requireKind(t, err, KindForbidden)
}
