package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tracked field names on Valve. They double as JSON keys and change log field names.
const (
	ValveFieldName              = "name"
	ValveFieldSize              = "size"
	ValveFieldFullOpenCondition = "full_open_condition"
	ValveFieldCurrentCondition  = "current_condition"
	ValveFieldMidPoint          = "mid_point"
	ValveFieldSteepness         = "steepness"
	ValveFieldRemarks           = "remarks"
	ValveFieldLatitude          = "latitude"
	ValveFieldLongitude         = "longitude"
	ValveFieldProvideArea       = "provide_area"
	ValveFieldResponsibleRoleID = "responsible_role_id"
)

// Valve is a field asset whose edits are audited field by field.
// PreviousPosition keeps the current condition as it was before its last change.
type Valve struct {
	ID                uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name              string              `gorm:"type:varchar(100);not null;index" json:"name"`
	Size              string              `gorm:"type:varchar(50);not null" json:"size"`
	FullOpenCondition decimal.Decimal     `gorm:"type:numeric(10,3);not null" json:"full_open_condition"`
	CurrentCondition  decimal.Decimal     `gorm:"type:numeric(10,3);not null" json:"current_condition"`
	MidPoint          decimal.NullDecimal `gorm:"type:numeric(6,4)" json:"mid_point"`
	Steepness         decimal.NullDecimal `gorm:"type:numeric(8,3)" json:"steepness"`
	Remarks           string              `gorm:"type:text" json:"remarks"`
	PreviousPosition  string              `gorm:"type:varchar(100);not null;default:''" json:"previous_position"`
	Latitude          *float64            `json:"latitude"`
	Longitude         *float64            `json:"longitude"`
	ProvideArea       *string             `gorm:"type:varchar(250);index" json:"provide_area"`
	ResponsibleRoleID *uuid.UUID          `gorm:"type:uuid;index" json:"responsible_role_id"`
	ResponsibleRole   *Role               `gorm:"foreignKey:ResponsibleRoleID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"`
	Logs              []ValveLog          `gorm:"foreignKey:ValveID;constraint:OnDelete:CASCADE;" json:"-"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Defaults applied to curve parameters when a valve is created without them.
var (
	DefaultMidPoint  = decimal.RequireFromString("0.5")
	DefaultSteepness = decimal.RequireFromString("12.5")
)
