package report

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultPrice is charged for a full vehicle report.
const DefaultPrice = 29.99

// Status is the generation state of a report.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// AllowTransition is the generation state machine. A failed report may be
// requeued; completed is terminal.
var AllowTransition = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {StatusPending},
}

// CanTransition reports whether from -> to is an allowed generation step.
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

// ApplyTransition moves a report through the generation lifecycle and
// maintains the timing fields. Call only after CanTransition.
func ApplyTransition(r *Report, to Status, now time.Time) error {
	if r == nil {
		return fmt.Errorf("report is nil")
	}
	from := r.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid report status transition: %s -> %s", from, to)
	}

	r.Status = to

	switch to {
	case StatusProcessing:
		t := now
		r.GenerationStartedAt = &t
	case StatusCompleted, StatusFailed:
		t := now
		r.GenerationCompletedAt = &t
	case StatusPending:
		// requeue: clear the previous attempt's timing and error
		r.GenerationStartedAt = nil
		r.GenerationCompletedAt = nil
		r.ErrorMessage = ""
	}
	return nil
}

// Report is one generated (or in-flight) vehicle history report.
type Report struct {
	ID            string `gorm:"primaryKey;size:36"`
	VehicleID     string `gorm:"index:idx_report_vehicle_created;size:36;not null"`
	RequestedByID string `gorm:"index:idx_report_user_created;size:36"`

	Status Status `gorm:"type:varchar(20);index;not null;default:'pending'"`

	IsPaid bool    `gorm:"not null;default:false"`
	Price  float64 `gorm:"type:decimal(8,2);not null;default:0"`

	IncludeTelemetry    bool `gorm:"not null;default:false"`
	IncludeOwnerHistory bool `gorm:"not null;default:true"`

	PDFKey   string          `gorm:"size:255"`
	JSONData json.RawMessage `gorm:"type:json"`

	ErrorMessage string `gorm:"type:text"`
	Attempts     int    `gorm:"not null;default:0"`

	GenerationStartedAt   *time.Time
	GenerationCompletedAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_report_vehicle_created;index:idx_report_user_created"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Report) TableName() string { return "vehicle_reports" }

// PaymentStatus tracks a purchase.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Purchase is the payment record for one report. One purchase per report.
type Purchase struct {
	ID       string `gorm:"primaryKey;size:36"`
	ReportID string `gorm:"uniqueIndex;size:36;not null"`
	UserID   string `gorm:"index;size:36"`

	Amount        float64       `gorm:"type:decimal(8,2);not null"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);index;not null;default:'pending'"`

	PaymentMethod string `gorm:"size:50;default:'credit_card'"`
	TransactionID string `gorm:"size:100"`

	CreatedAt   time.Time `gorm:"autoCreateTime"`
	CompletedAt *time.Time
}

func (Purchase) TableName() string { return "report_purchases" }
