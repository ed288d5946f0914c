package healthrecord

import (
	"time"

	"github.com/google/uuid"
)

// Record is one clinical measurement entry. Only Read changes after creation.
type Record struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Date          time.Time
	Weight        *float64 // kg
	Height        *float64 // cm
	BloodPressure *string  // e.g. 120/80
	HeartRate     *int     // bpm
	Diagnosis     *string
	Notes         *string
	Read          bool
	CreatedAt     time.Time
}

type NewRecord struct {
	UserID        uuid.UUID `validate:"required"`
	Date          time.Time `validate:"required"`
	Weight        *float64  `validate:"omitempty,gt=0,lte=500"`
	Height        *float64  `validate:"omitempty,gt=0,lte=300"`
	BloodPressure *string   `validate:"omitempty,max=16"`
	HeartRate     *int      `validate:"omitempty,gt=0,lte=300"`
	Diagnosis     *string   `validate:"omitempty,max=500"`
	Notes         *string   `validate:"omitempty,max=2000"`
}
