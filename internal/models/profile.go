package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type DietaryPreference string

const (
	DietVegetarian DietaryPreference = "Vegetarian"
	DietVegan      DietaryPreference = "Vegan"
	DietGlutenFree DietaryPreference = "Gluten-Free"
	DietDairyFree  DietaryPreference = "Dairy-Free"
	DietNutFree    DietaryPreference = "Nut-Free"
	DietOrganic    DietaryPreference = "Organic"
	DietKeto       DietaryPreference = "Keto"
	DietPaleo      DietaryPreference = "Paleo"
)

func (d DietaryPreference) Valid() bool {
	switch d {
	case DietVegetarian, DietVegan, DietGlutenFree, DietDairyFree, DietNutFree, DietOrganic, DietKeto, DietPaleo:
		return true
	}
	return false
}

// CommunicationPreferences are the channels a user accepts notifications on.
type CommunicationPreferences struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
	Push  bool `json:"push"`
}

func (c CommunicationPreferences) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *CommunicationPreferences) Scan(src any) error {
	return scanJSON(src, c)
}

// Preferences is the per-user settings row. Users without one get
// DefaultPreferences.
type Preferences struct {
	UserID        string                   `db:"user_id" json:"-"`
	Dietary       StringList               `db:"dietary_preferences" json:"dietary_preferences"`
	Communication CommunicationPreferences `db:"communication_preferences" json:"communication_preferences"`
	UpdatedAt     time.Time                `db:"updated_at" json:"-"`
}

func DefaultPreferences(userID string) *Preferences {
	return &Preferences{
		UserID:        userID,
		Dietary:       StringList{},
		Communication: CommunicationPreferences{Email: true},
	}
}

// Address is a consumer delivery address. Deleted addresses stay in the
// table with IsActive cleared.
type Address struct {
	ID                   string    `db:"id" json:"id"`
	UserID               string    `db:"user_id" json:"-"`
	Label                *string   `db:"label" json:"label"`
	Street               string    `db:"street" json:"street"`
	City                 string    `db:"city" json:"city"`
	State                string    `db:"state" json:"state"`
	ZipCode              string    `db:"zip_code" json:"zip_code"`
	DeliveryInstructions *string   `db:"delivery_instructions" json:"delivery_instructions"`
	IsDefault            bool      `db:"is_default" json:"is_default"`
	IsActive             bool      `db:"is_active" json:"-"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

type PaymentType string

const (
	PaymentCard          PaymentType = "card"
	PaymentDigitalWallet PaymentType = "digital_wallet"
)

func (p PaymentType) Valid() bool {
	return p == PaymentCard || p == PaymentDigitalWallet
}

// PaymentMethod is a saved, tokenized payment method. The raw card number
// is never stored.
type PaymentMethod struct {
	ID          string      `db:"id" json:"id"`
	UserID      string      `db:"user_id" json:"-"`
	PaymentType PaymentType `db:"payment_type" json:"payment_type"`
	Provider    *string     `db:"provider" json:"provider"`
	Token       string      `db:"token" json:"-"`
	LastFour    *string     `db:"last_four" json:"last_four"`
	ExpiryMonth *int        `db:"expiry_month" json:"expiry_month"`
	ExpiryYear  *int        `db:"expiry_year" json:"expiry_year"`
	IsDefault   bool        `db:"is_default" json:"is_default"`
	IsActive    bool        `db:"is_active" json:"-"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

type BankAccountType string

const (
	AccountChecking BankAccountType = "checking"
	AccountSavings  BankAccountType = "savings"
)

func (t BankAccountType) Valid() bool {
	return t == AccountChecking || t == AccountSavings
}

// BankAccount is a farmer's payout account. Account and routing numbers
// are stored sealed and only the last four account digits are shown.
type BankAccount struct {
	ID                     string          `db:"id" json:"id"`
	FarmerID               string          `db:"farmer_id" json:"-"`
	AccountHolderName      string          `db:"account_holder_name" json:"account_holder_name"`
	AccountNumberEncrypted string          `db:"account_number_encrypted" json:"-"`
	RoutingNumberEncrypted string          `db:"routing_number_encrypted" json:"-"`
	AccountLastFour        string          `db:"account_last_four" json:"account_last_four"`
	BankName               *string         `db:"bank_name" json:"bank_name"`
	AccountType            BankAccountType `db:"account_type" json:"account_type"`
	IsVerified             bool            `db:"is_verified" json:"is_verified"`
	CreatedAt              time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time       `db:"updated_at" json:"updated_at"`
}

// FarmerSummary is one row of the admin farmer listing.
type FarmerSummary struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	Email            string    `db:"email" json:"email"`
	FullName         string    `db:"full_name" json:"full_name"`
	FarmName         *string   `db:"farm_name" json:"farm_name"`
	ProfileCompleted bool      `db:"profile_completed" json:"profile_completed"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
