package models

import "time"

// FarmingPractice is a declared farming method.
type FarmingPractice string

const (
	PracticeOrganic      FarmingPractice = "Organic"
	PracticeSustainable  FarmingPractice = "Sustainable"
	PracticeConventional FarmingPractice = "Conventional"
	PracticeBiodynamic   FarmingPractice = "Biodynamic"
	PracticeRegenerative FarmingPractice = "Regenerative"
)

func (p FarmingPractice) Valid() bool {
	switch p {
	case PracticeOrganic, PracticeSustainable, PracticeConventional, PracticeBiodynamic, PracticeRegenerative:
		return true
	}
	return false
}

// Farmer is the seller profile attached to a farmer user.
type Farmer struct {
	ID                    string     `db:"id" json:"id"`
	UserID                string     `db:"user_id" json:"user_id"`
	FarmName              *string    `db:"farm_name" json:"farm_name"`
	FarmDescription       *string    `db:"farm_description" json:"farm_description"`
	FarmStreet            *string    `db:"farm_street" json:"farm_street"`
	FarmCity              *string    `db:"farm_city" json:"farm_city"`
	FarmState             *string    `db:"farm_state" json:"farm_state"`
	FarmZipCode           *string    `db:"farm_zip_code" json:"farm_zip_code"`
	FarmingPractices      StringList `db:"farming_practices" json:"farming_practices"`
	ProfileCompleted      bool       `db:"profile_completed" json:"profile_completed"`
	ProfileCompletionStep int        `db:"profile_completion_step" json:"profile_completion_step"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// FarmDetails is a partial update of the farm profile.
type FarmDetails struct {
	FarmName         *string  `json:"farm_name"`
	FarmDescription  *string  `json:"farm_description"`
	FarmStreet       *string  `json:"farm_street"`
	FarmCity         *string  `json:"farm_city"`
	FarmState        *string  `json:"farm_state"`
	FarmZipCode      *string  `json:"farm_zip_code"`
	FarmingPractices []string `json:"farming_practices"`
}
