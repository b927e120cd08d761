package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"farm-market/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const addressColumns = `id, user_id, label, street, city, state, zip_code, delivery_instructions,
	is_default, is_active, created_at, updated_at`

const paymentMethodColumns = `id, user_id, payment_type, provider, token, last_four, expiry_month,
	expiry_year, is_default, is_active, created_at, updated_at`

const bankAccountColumns = `id, farmer_id, account_holder_name, account_number_encrypted,
	routing_number_encrypted, account_last_four, bank_name, account_type, is_verified, created_at, updated_at`

// GetPreferences returns ErrNotFound when the user never saved any.
func (s *Store) GetPreferences(ctx context.Context, userID string) (*models.Preferences, error) {
	var p models.Preferences
	err := s.db.GetContext(ctx, &p, s.db.Rebind(
		"SELECT user_id, dietary_preferences, communication_preferences, updated_at FROM user_preferences WHERE user_id = ?"), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return &p, nil
}

func (s *Store) SavePreferences(ctx context.Context, p *models.Preferences, now time.Time) error {
	p.UpdatedAt = utc(now)
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO user_preferences (user_id, dietary_preferences, communication_preferences, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			dietary_preferences = excluded.dietary_preferences,
			communication_preferences = excluded.communication_preferences,
			updated_at = excluded.updated_at`),
		p.UserID, p.Dietary, p.Communication, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// ListAddresses returns the user's active addresses, default first.
func (s *Store) ListAddresses(ctx context.Context, userID string) ([]models.Address, error) {
	addresses := []models.Address{}
	err := s.db.SelectContext(ctx, &addresses, s.db.Rebind(
		"SELECT "+addressColumns+" FROM addresses WHERE user_id = ? AND is_active = ? ORDER BY is_default DESC, created_at, id"),
		userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	return addresses, nil
}

// GetAddress only finds active addresses owned by userID.
func (s *Store) GetAddress(ctx context.Context, userID, id string) (*models.Address, error) {
	var a models.Address
	err := s.db.GetContext(ctx, &a, s.db.Rebind(
		"SELECT "+addressColumns+" FROM addresses WHERE id = ? AND user_id = ? AND is_active = ?"), id, userID, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return &a, nil
}

// clearDefault unsets is_default on the user's other rows of table.
func clearDefault(ctx context.Context, tx *sqlx.Tx, table, userID, keepID string, now time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(
		"UPDATE "+table+" SET is_default = ?, updated_at = ? WHERE user_id = ? AND id <> ? AND is_default = ?"),
		false, now, userID, keepID, true)
	if err != nil {
		return fmt.Errorf("failed to clear default in %s: %w", table, err)
	}
	return nil
}

// CreateAddress inserts a. A default address replaces the previous default.
func (s *Store) CreateAddress(ctx context.Context, a *models.Address) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = utc(a.CreatedAt)
	a.UpdatedAt = a.CreatedAt
	a.IsActive = true

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if a.IsDefault {
			if err := clearDefault(ctx, tx, "addresses", a.UserID, a.ID, a.CreatedAt); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO addresses (`+addressColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			a.ID, a.UserID, a.Label, a.Street, a.City, a.State, a.ZipCode, a.DeliveryInstructions,
			a.IsDefault, a.IsActive, a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create address: %w", err)
		}
		return nil
	})
}

// UpdateAddress writes every mutable column of a.
func (s *Store) UpdateAddress(ctx context.Context, a *models.Address, now time.Time) error {
	a.UpdatedAt = utc(now)
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if a.IsDefault {
			if err := clearDefault(ctx, tx, "addresses", a.UserID, a.ID, a.UpdatedAt); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE addresses SET label = ?, street = ?, city = ?, state = ?, zip_code = ?,
				delivery_instructions = ?, is_default = ?, updated_at = ?
			WHERE id = ? AND user_id = ? AND is_active = ?`),
			a.Label, a.Street, a.City, a.State, a.ZipCode, a.DeliveryInstructions, a.IsDefault,
			a.UpdatedAt, a.ID, a.UserID, true)
		if err != nil {
			return fmt.Errorf("failed to update address: %w", err)
		}
		return expectRow(res)
	})
}

// DeactivateAddress soft deletes an address so past deliveries keep it.
func (s *Store) DeactivateAddress(ctx context.Context, userID, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		"UPDATE addresses SET is_active = ?, is_default = ?, updated_at = ? WHERE id = ? AND user_id = ? AND is_active = ?"),
		false, false, utc(now), id, userID, true)
	if err != nil {
		return fmt.Errorf("failed to delete address: %w", err)
	}
	return expectRow(res)
}

func (s *Store) ListPaymentMethods(ctx context.Context, userID string) ([]models.PaymentMethod, error) {
	methods := []models.PaymentMethod{}
	err := s.db.SelectContext(ctx, &methods, s.db.Rebind(
		"SELECT "+paymentMethodColumns+" FROM payment_methods WHERE user_id = ? AND is_active = ? ORDER BY is_default DESC, created_at, id"),
		userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	return methods, nil
}

// CreatePaymentMethod inserts m. A default method replaces the previous default.
func (s *Store) CreatePaymentMethod(ctx context.Context, m *models.PaymentMethod) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = utc(m.CreatedAt)
	m.UpdatedAt = m.CreatedAt
	m.IsActive = true

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if m.IsDefault {
			if err := clearDefault(ctx, tx, "payment_methods", m.UserID, m.ID, m.CreatedAt); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO payment_methods (`+paymentMethodColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			m.ID, m.UserID, m.PaymentType, m.Provider, m.Token, m.LastFour, m.ExpiryMonth,
			m.ExpiryYear, m.IsDefault, m.IsActive, m.CreatedAt, m.UpdatedAt)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("failed to create payment method: %w", err)
		}
		return nil
	})
}

func (s *Store) DeactivatePaymentMethod(ctx context.Context, userID, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		"UPDATE payment_methods SET is_active = ?, is_default = ?, updated_at = ? WHERE id = ? AND user_id = ? AND is_active = ?"),
		false, false, utc(now), id, userID, true)
	if err != nil {
		return fmt.Errorf("failed to remove payment method: %w", err)
	}
	return expectRow(res)
}

func (s *Store) GetBankAccount(ctx context.Context, farmerID string) (*models.BankAccount, error) {
	var acct models.BankAccount
	err := s.db.GetContext(ctx, &acct, s.db.Rebind(
		"SELECT "+bankAccountColumns+" FROM farmer_bank_accounts WHERE farmer_id = ?"), farmerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank account: %w", err)
	}
	return &acct, nil
}

// SaveBankAccount inserts or replaces the farmer's single payout account.
// The original id and created_at survive a replace.
func (s *Store) SaveBankAccount(ctx context.Context, acct *models.BankAccount, now time.Time) error {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	now = utc(now)
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	acct.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO farmer_bank_accounts (`+bankAccountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (farmer_id) DO UPDATE SET
			account_holder_name = excluded.account_holder_name,
			account_number_encrypted = excluded.account_number_encrypted,
			routing_number_encrypted = excluded.routing_number_encrypted,
			account_last_four = excluded.account_last_four,
			bank_name = excluded.bank_name,
			account_type = excluded.account_type,
			is_verified = excluded.is_verified,
			updated_at = excluded.updated_at`),
		acct.ID, acct.FarmerID, acct.AccountHolderName, acct.AccountNumberEncrypted,
		acct.RoutingNumberEncrypted, acct.AccountLastFour, acct.BankName, acct.AccountType,
		acct.IsVerified, utc(acct.CreatedAt), acct.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save bank account: %w", err)
	}
	return nil
}

func (s *Store) DeleteBankAccount(ctx context.Context, farmerID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM farmer_bank_accounts WHERE farmer_id = ?"), farmerID)
	if err != nil {
		return fmt.Errorf("failed to delete bank account: %w", err)
	}
	return expectRow(res)
}

// ListFarmers pages through farmer profiles with their account details,
// newest first.
func (s *Store) ListFarmers(ctx context.Context, limit, offset int) ([]models.FarmerSummary, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM farmers"); err != nil {
		return nil, 0, fmt.Errorf("failed to count farmers: %w", err)
	}

	farmers := []models.FarmerSummary{}
	err := s.db.SelectContext(ctx, &farmers, s.db.Rebind(`
		SELECT f.id, f.user_id, u.email, u.full_name, f.farm_name, f.profile_completed, f.created_at
		FROM farmers f
		JOIN users u ON u.id = f.user_id
		ORDER BY f.created_at DESC, f.id
		LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list farmers: %w", err)
	}
	return farmers, total, nil
}
