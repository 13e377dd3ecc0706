package history

import "time"

// TitleEventType classifies a title history entry.
type TitleEventType string

const (
	TitleEventInitial     TitleEventType = "initial"
	TitleEventTransfer    TitleEventType = "transfer"
	TitleEventBrandChange TitleEventType = "brand_change"
	TitleEventDuplicate   TitleEventType = "duplicate"
	TitleEventLienAdd     TitleEventType = "lien_add"
	TitleEventLienRelease TitleEventType = "lien_release"
)

func ValidTitleEventType(t TitleEventType) bool {
	switch t {
	case TitleEventInitial, TitleEventTransfer, TitleEventBrandChange,
		TitleEventDuplicate, TitleEventLienAdd, TitleEventLienRelease:
		return true
	}
	return false
}

// TitleEvent is one title issuance or brand change.
type TitleEvent struct {
	ID        string `gorm:"primaryKey;size:36"`
	VehicleID string `gorm:"index:idx_title_vehicle_date;size:36;not null"`

	EventType   TitleEventType `gorm:"type:varchar(20);not null"`
	EventDate   time.Time      `gorm:"index:idx_title_vehicle_date;not null"`
	TitleStatus string         `gorm:"type:varchar(20);index;not null"`

	State       string `gorm:"size:2;not null"`
	TitleNumber string `gorm:"size:50"`

	OdometerReading int
	OdometerUnit    string `gorm:"size:10;default:'miles'"`

	Notes  string `gorm:"type:text"`
	Source string `gorm:"size:100"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// AccidentSeverity grades the damage.
type AccidentSeverity string

const (
	SeverityMinor     AccidentSeverity = "minor"
	SeverityModerate  AccidentSeverity = "moderate"
	SeveritySevere    AccidentSeverity = "severe"
	SeverityTotalLoss AccidentSeverity = "total_loss"
)

func ValidSeverity(s AccidentSeverity) bool {
	switch s {
	case SeverityMinor, SeverityModerate, SeveritySevere, SeverityTotalLoss:
		return true
	}
	return false
}

// RecordSource names where a history record came from.
type RecordSource string

const (
	SourceInsurance    RecordSource = "insurance"
	SourcePolice       RecordSource = "police"
	SourceRepairShop   RecordSource = "repair_shop"
	SourceDMV          RecordSource = "dmv"
	SourceInspection   RecordSource = "inspection"
	SourceService      RecordSource = "service"
	SourceDealer       RecordSource = "dealer"
	SourceSale         RecordSource = "sale"
	SourceCrowdsourced RecordSource = "crowdsourced"
)

// AccidentRecord is one reported accident.
type AccidentRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	VehicleID string `gorm:"index:idx_accident_vehicle_date;size:36;not null"`

	AccidentDate time.Time        `gorm:"index:idx_accident_vehicle_date;not null"`
	Severity     AccidentSeverity `gorm:"type:varchar(20);index;not null"`
	Source       RecordSource     `gorm:"type:varchar(20);not null"`

	DamageDescription   string  `gorm:"type:text"`
	EstimatedDamageCost float64 `gorm:"type:decimal(10,2)"`

	LocationCity  string `gorm:"size:100"`
	LocationState string `gorm:"size:2"`

	AirbagDeployed     bool `gorm:"not null;default:false"`
	IsStructuralDamage bool `gorm:"not null;default:false"`

	ReportNumber string `gorm:"size:100"`
	Verified     bool   `gorm:"index;not null;default:false"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// MileageRecord is one odometer reading.
type MileageRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	VehicleID string `gorm:"index:idx_mileage_vehicle_date;size:36;not null"`

	RecordedDate time.Time `gorm:"index:idx_mileage_vehicle_date;not null"`
	Mileage      int       `gorm:"not null"`
	Unit         string    `gorm:"size:10;default:'miles'"`

	Source       RecordSource `gorm:"type:varchar(20);not null"`
	SourceDetail string       `gorm:"size:255"`

	IsRollbackSuspected bool `gorm:"index;not null;default:false"`
	Verified            bool `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// OwnerType classifies an owner in the anonymized ownership chain.
type OwnerType string

const (
	OwnerIndividual OwnerType = "individual"
	OwnerFleet      OwnerType = "fleet"
	OwnerRental     OwnerType = "rental"
	OwnerLease      OwnerType = "lease"
	OwnerGovernment OwnerType = "government"
	OwnerDealer     OwnerType = "dealer"
)

func ValidOwnerType(t OwnerType) bool {
	switch t {
	case OwnerIndividual, OwnerFleet, OwnerRental, OwnerLease, OwnerGovernment, OwnerDealer:
		return true
	}
	return false
}

// OwnershipRecord is one anonymized owner in the chain. The owner is only
// identified by a hash, used for consent matching.
type OwnershipRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	VehicleID string `gorm:"uniqueIndex:idx_vehicle_owner_seq;size:36;not null"`

	OwnerSequence int       `gorm:"uniqueIndex:idx_vehicle_owner_seq;not null"`
	OwnerType     OwnerType `gorm:"type:varchar(20);not null"`

	OwnershipStart time.Time `gorm:"index;not null"`
	OwnershipEnd   *time.Time
	IsCurrent      bool `gorm:"index;not null;default:false"`

	State                 string `gorm:"size:2"`
	OwnershipDurationDays int

	OwnerHash           string `gorm:"size:64"`
	ConsentedToTracking bool   `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TheftStatus tracks a theft case.
type TheftStatus string

const (
	TheftReported  TheftStatus = "reported"
	TheftRecovered TheftStatus = "recovered"
	TheftClosed    TheftStatus = "closed"
)

func ValidTheftStatus(s TheftStatus) bool {
	switch s {
	case TheftReported, TheftRecovered, TheftClosed:
		return true
	}
	return false
}

// TheftRecord is one theft report or recovery.
type TheftRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	VehicleID string `gorm:"index:idx_theft_vehicle_status;size:36;not null"`

	Status        TheftStatus `gorm:"type:varchar(20);index:idx_theft_vehicle_status;not null;default:'reported'"`
	ReportedDate  time.Time   `gorm:"index;not null"`
	RecoveredDate *time.Time

	ReportingAgency string `gorm:"size:255;not null"`
	CaseNumber      string `gorm:"size:100"`

	TheftLocationCity  string `gorm:"size:100"`
	TheftLocationState string `gorm:"size:2"`

	Notes string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
