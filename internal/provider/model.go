package provider

import (
	"encoding/json"
	"time"
)

// Type names an external data source category.
type Type string

const (
	TypeVINDecoder Type = "vin_decoder"
	TypeDMV        Type = "dmv"
	TypeInsurance  Type = "insurance"
	TypeNCIB       Type = "ncib"
	TypePolice     Type = "police"
	TypeService    Type = "service"
)

func ValidType(t Type) bool {
	switch t {
	case TypeVINDecoder, TypeDMV, TypeInsurance, TypeNCIB, TypePolice, TypeService:
		return true
	}
	return false
}

// DataProvider is one registered external source.
type DataProvider struct {
	ID   string `gorm:"primaryKey;size:36"`
	Name string `gorm:"uniqueIndex;size:255;not null"`
	Type Type   `gorm:"type:varchar(20);not null"`

	APIEndpoint string `gorm:"size:255"`
	IsActive    bool   `gorm:"index;not null;default:true"`

	APIKey    string `gorm:"size:255" json:"-"`
	APISecret string `gorm:"size:255" json:"-"`

	RateLimitPerHour int `gorm:"not null;default:1000"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (DataProvider) TableName() string { return "data_providers" }

// FeedStatus tracks one ingestion attempt.
type FeedStatus string

const (
	FeedPending    FeedStatus = "pending"
	FeedProcessing FeedStatus = "processing"
	FeedCompleted  FeedStatus = "completed"
	FeedFailed     FeedStatus = "failed"
)

// Feed is the log row for one provider request.
type Feed struct {
	ID         string `gorm:"primaryKey;size:36"`
	ProviderID string `gorm:"index:idx_feed_provider_requested;size:36;not null"`
	VehicleID  string `gorm:"index;size:36"`

	Status FeedStatus `gorm:"type:varchar(20);index;not null;default:'pending'"`

	RequestPayload json.RawMessage `gorm:"type:json"`
	ResponseData   json.RawMessage `gorm:"type:json"`
	ErrorMessage   string          `gorm:"type:text"`

	RequestedAt time.Time `gorm:"autoCreateTime;index:idx_feed_provider_requested"`
	CompletedAt *time.Time
}

func (Feed) TableName() string { return "provider_data_feeds" }
