package crowd

import (
	"fmt"
	"time"
)

// ReportType classifies a user-submitted report.
type ReportType string

const (
	TypeSighting    ReportType = "sighting"
	TypeCondition   ReportType = "condition"
	TypeMaintenance ReportType = "maintenance"
	TypeAccident    ReportType = "accident"
	TypeTheft       ReportType = "theft"
	TypeForSale     ReportType = "for_sale"
	TypeOther       ReportType = "other"
)

func ValidReportType(t ReportType) bool {
	switch t {
	case TypeSighting, TypeCondition, TypeMaintenance, TypeAccident, TypeTheft, TypeForSale, TypeOther:
		return true
	}
	return false
}

// Status is the moderation state of a report.
type Status string

const (
	StatusPending   Status = "pending"
	StatusVerified  Status = "verified"
	StatusRejected  Status = "rejected"
	StatusDuplicate Status = "duplicate"
)

// AllowTransition is the moderation state machine. Verified, rejected and
// duplicate are terminal.
var AllowTransition = map[Status][]Status{
	StatusPending:   {StatusVerified, StatusRejected, StatusDuplicate},
	StatusVerified:  {},
	StatusRejected:  {},
	StatusDuplicate: {},
}

// CanTransition reports whether from -> to is an allowed moderation step.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyTransition moves a report to the target status and stamps the
// moderation fields. Call only after CanTransition.
func ApplyTransition(r *Report, to Status, verifierID string, now time.Time) error {
	if r == nil {
		return fmt.Errorf("report is nil")
	}
	from := r.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid report status transition: %s -> %s", from, to)
	}

	r.Status = to

	if to != StatusPending && r.VerifiedAt == nil {
		t := now
		r.VerifiedAt = &t
		r.VerifiedByID = verifierID
	}
	return nil
}

// Report is one crowdsourced submission awaiting moderation.
type Report struct {
	ID            string `gorm:"primaryKey;size:36"`
	VehicleID     string `gorm:"index:idx_crowd_vehicle_status;size:36;not null"`
	SubmittedByID string `gorm:"index;size:36"`

	ReportType ReportType `gorm:"type:varchar(20);index;not null"`
	Status     Status     `gorm:"type:varchar(20);index:idx_crowd_vehicle_status;index;not null;default:'pending'"`

	ReportDate  time.Time `gorm:"not null"`
	Description string    `gorm:"type:text;not null"`

	LocationCity  string `gorm:"size:100"`
	LocationState string `gorm:"size:2"`

	VerifiedByID string `gorm:"size:36"`
	VerifiedAt   *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Report) TableName() string { return "crowdsourced_reports" }
