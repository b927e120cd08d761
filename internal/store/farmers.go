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

const farmerColumns = `id, user_id, farm_name, farm_description, farm_street, farm_city, farm_state,
	farm_zip_code, farming_practices, profile_completed, profile_completion_step, created_at, updated_at`

func insertFarmer(ctx context.Context, q sqlx.ExtContext, f *models.Farmer) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = utc(f.CreatedAt)
	f.UpdatedAt = f.CreatedAt
	if f.ProfileCompletionStep == 0 {
		f.ProfileCompletionStep = 1
	}

	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO farmers (`+farmerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		f.ID, f.UserID, f.FarmName, f.FarmDescription, f.FarmStreet, f.FarmCity, f.FarmState,
		f.FarmZipCode, f.FarmingPractices, f.ProfileCompleted, f.ProfileCompletionStep, f.CreatedAt, f.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create farmer: %w", err)
	}
	return nil
}

// CreateFarmer inserts a farmer profile for an existing user.
func (s *Store) CreateFarmer(ctx context.Context, f *models.Farmer) error {
	return insertFarmer(ctx, s.db, f)
}

func (s *Store) getFarmerWhere(ctx context.Context, where string, arg any) (*models.Farmer, error) {
	var farmer models.Farmer
	err := s.db.GetContext(ctx, &farmer, s.db.Rebind("SELECT "+farmerColumns+" FROM farmers WHERE "+where), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get farmer: %w", err)
	}
	return &farmer, nil
}

func (s *Store) GetFarmerByID(ctx context.Context, id string) (*models.Farmer, error) {
	return s.getFarmerWhere(ctx, "id = ?", id)
}

func (s *Store) GetFarmerByUserID(ctx context.Context, userID string) (*models.Farmer, error) {
	return s.getFarmerWhere(ctx, "user_id = ?", userID)
}

// UpdateFarmer writes every mutable profile column of f.
func (s *Store) UpdateFarmer(ctx context.Context, f *models.Farmer, now time.Time) error {
	f.UpdatedAt = utc(now)
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE farmers SET farm_name = ?, farm_description = ?, farm_street = ?, farm_city = ?,
			farm_state = ?, farm_zip_code = ?, farming_practices = ?, profile_completed = ?,
			profile_completion_step = ?, updated_at = ?
		WHERE id = ?`),
		f.FarmName, f.FarmDescription, f.FarmStreet, f.FarmCity, f.FarmState, f.FarmZipCode,
		f.FarmingPractices, f.ProfileCompleted, f.ProfileCompletionStep, f.UpdatedAt, f.ID)
	if err != nil {
		return fmt.Errorf("failed to update farmer: %w", err)
	}
	return expectRow(res)
}

// GetFarmerNames maps farmer ids to a display name: the farm name when set,
// otherwise the owner's full name.
func (s *Store) GetFarmerNames(ctx context.Context, farmerIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(farmerIDs))
	if len(farmerIDs) == 0 {
		return names, nil
	}

	query, args, err := sqlx.In(`
		SELECT f.id, f.farm_name, u.full_name FROM farmers f
		JOIN users u ON u.id = f.user_id
		WHERE f.id IN (?)`, farmerIDs)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID       string  `db:"id"`
		FarmName *string `db:"farm_name"`
		FullName string  `db:"full_name"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get farmer names: %w", err)
	}
	for _, r := range rows {
		if r.FarmName != nil && *r.FarmName != "" {
			names[r.ID] = *r.FarmName
		} else {
			names[r.ID] = r.FullName
		}
	}
	return names, nil
}
