package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
)

// Action classifies an audited access.
type Action string

const (
	ActionView             Action = "view"
	ActionSearch           Action = "search"
	ActionCreate           Action = "create"
	ActionUpdate           Action = "update"
	ActionDelete           Action = "delete"
	ActionExport           Action = "export"
	ActionAccessRestricted Action = "access_restricted"
)

// Log is one audit row.
type Log struct {
	ID     string `gorm:"primaryKey;size:36"`
	UserID string `gorm:"index:idx_audit_user_ts;size:36"`

	Action       Action `gorm:"type:varchar(30);index:idx_audit_action_ts;not null"`
	ResourceType string `gorm:"index:idx_audit_resource;size:50;not null"`
	ResourceID   string `gorm:"index:idx_audit_resource;size:36"`
	VehicleID    string `gorm:"index;size:36"`

	IPAddress string `gorm:"size:45"`
	UserAgent string `gorm:"type:text"`

	Metadata json.RawMessage `gorm:"type:json"`

	Timestamp time.Time `gorm:"autoCreateTime;index;index:idx_audit_user_ts;index:idx_audit_action_ts"`
}

func (Log) TableName() string { return "audit_logs" }

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) Create(ctx context.Context, l *Log) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(l).Error
}

// QueryFilter narrows the audit trail.
type QueryFilter struct {
	UserID       string
	Action       Action
	ResourceType string
	VehicleID    string
	Since        time.Time
	Offset       int
	Limit        int
}

func (r *Repo) Query(ctx context.Context, f QueryFilter) ([]Log, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := db.Model(&Log{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.ResourceType != "" {
		q = q.Where("resource_type = ?", f.ResourceType)
	}
	if f.VehicleID != "" {
		q = q.Where("vehicle_id = ?", f.VehicleID)
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp >= ?", f.Since)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []Log
	if err := q.Order("timestamp DESC").Offset(f.Offset).Limit(f.Limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// Entry is one event handed to the Recorder.
type Entry struct {
	UserID       string
	Action       Action
	ResourceType string
	ResourceID   string
	VehicleID    string
	IPAddress    string
	UserAgent    string
	Metadata     map[string]interface{}
}

// Recorder writes audit rows off the request path. Events are buffered on a
// channel and persisted by a single background writer; a full buffer drops
// the event rather than stalling the request.
type Recorder struct {
	repo *Repo
	log  logger.Logger

	ch     chan Entry
	wg     sync.WaitGroup
	once   sync.Once
	closed chan struct{}
}

func NewRecorder(repo *Repo, log logger.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	r := &Recorder{
		repo:   repo,
		log:    log,
		ch:     make(chan Entry, buffer),
		closed: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case e := <-r.ch:
			r.persist(e)
		case <-r.closed:
			// drain whatever is still buffered
			for {
				select {
				case e := <-r.ch:
					r.persist(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) persist(e Entry) {
	l := &Log{
		ID:           uuid.NewString(),
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		VehicleID:    e.VehicleID,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
	}
	if len(e.Metadata) > 0 {
		if b, err := json.Marshal(e.Metadata); err == nil {
			l.Metadata = b
		}
	}
	if err := r.repo.Create(context.Background(), l); err != nil {
		r.log.Errorf("audit row not persisted: %v", err)
	}
}

// Record queues one event. Never blocks.
func (r *Recorder) Record(e Entry) {
	if r == nil {
		return
	}
	select {
	case <-r.closed:
		return
	default:
	}
	select {
	case r.ch <- e:
	default:
		r.log.Warnf("audit buffer full, dropping %s %s", e.Action, e.ResourceType)
	}
}

// Close stops accepting events and waits for the writer to drain.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.once.Do(func() { close(r.closed) })
	r.wg.Wait()
}
