package vehicle

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TitleStatus is the legal title brand of a vehicle.
type TitleStatus string

const (
	TitleClean   TitleStatus = "clean"
	TitleSalvage TitleStatus = "salvage"
	TitleRebuilt TitleStatus = "rebuilt"
	TitleJunk    TitleStatus = "junk"
	TitleFlood   TitleStatus = "flood"
	TitleHail    TitleStatus = "hail"
	TitleLemon   TitleStatus = "lemon"
)

// ValidTitleStatus reports whether s is a known title brand.
func ValidTitleStatus(s TitleStatus) bool {
	switch s {
	case TitleClean, TitleSalvage, TitleRebuilt, TitleJunk, TitleFlood, TitleHail, TitleLemon:
		return true
	}
	return false
}

// vinPattern excludes I, O and Q per the VIN standard.
var vinPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// NormalizeVIN upper-cases and validates a VIN.
func NormalizeVIN(vin string) (string, error) {
	vin = strings.ToUpper(strings.TrimSpace(vin))
	if !vinPattern.MatchString(vin) {
		return "", fmt.Errorf("invalid VIN format: %q", vin)
	}
	return vin, nil
}

// Vehicle is the vehicles table GORM model.
type Vehicle struct {
	ID  string `gorm:"primaryKey;size:36"`
	VIN string `gorm:"uniqueIndex;size:17;not null"`

	Make      string `gorm:"index:idx_make_model_year;size:100;not null"`
	Model     string `gorm:"index:idx_make_model_year;size:100;not null"`
	Year      int    `gorm:"index:idx_make_model_year;not null"`
	Trim      string `gorm:"size:100"`
	BodyStyle string `gorm:"size:50"`
	Color     string `gorm:"size:50"`

	Engine       string  `gorm:"size:100"`
	Transmission string  `gorm:"size:100"`
	Drivetrain   string  `gorm:"size:50"`
	FuelType     string  `gorm:"size:50"`
	Displacement float64 `gorm:"type:decimal(4,1)"`
	Cylinders    int

	ManufactureCountry string `gorm:"size:100"`
	ManufacturePlant   string `gorm:"size:100"`
	ManufactureDate    *time.Time

	CurrentMileage     int         `gorm:"not null;default:0"`
	CurrentTitleStatus TitleStatus `gorm:"type:varchar(20);index;not null;default:'clean'"`
	IsStolen           bool        `gorm:"index;not null;default:false"`

	CurrentOwnerCount int  `gorm:"not null;default:1"`
	TrackingConsent   bool `gorm:"index;not null;default:false"`
	TrackingConsentAt *time.Time

	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
	LastReportedAt *time.Time
}

// Registration is one license plate issued for a vehicle.
// plate+state+country is unique; at most one row per vehicle is current.
type Registration struct {
	ID        string `gorm:"primaryKey;size:36"`
	VehicleID string `gorm:"index;size:36;not null"`

	PlateNumber string `gorm:"uniqueIndex:idx_plate_state_country;index;size:20;not null"`
	State       string `gorm:"uniqueIndex:idx_plate_state_country;size:2;not null"`
	Country     string `gorm:"uniqueIndex:idx_plate_state_country;size:2;not null;default:'US'"`

	IssuedDate time.Time `gorm:"not null"`
	ExpiryDate *time.Time
	IsCurrent  bool `gorm:"index;not null;default:true"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}
