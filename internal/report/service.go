package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
	"github.com/AutoSentinel/AutoSentinel/internal/notify"
	"github.com/AutoSentinel/AutoSentinel/internal/storage"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

// ErrForbidden is returned when a caller may not access a report.
var ErrForbidden = errors.New("report access denied")

// ErrAlreadyPurchased is returned on a second purchase attempt.
var ErrAlreadyPurchased = errors.New("report already purchased")

// Service owns the report lifecycle: request, purchase, generation.
type Service struct {
	repo      *Repo
	vehicles  *vehicle.Service
	assembler *Assembler
	store     storage.Store
	notifier  notify.Notifier
	log       logger.Logger
}

func NewService(repo *Repo, vehicles *vehicle.Service, assembler *Assembler, store storage.Store, notifier notify.Notifier, log logger.Logger) *Service {
	return &Service{
		repo:      repo,
		vehicles:  vehicles,
		assembler: assembler,
		store:     store,
		notifier:  notifier,
		log:       log,
	}
}

func (s *Service) Repo() *Repo { return s.repo }

// RequestInput is one report request.
type RequestInput struct {
	IncludeTelemetry    bool
	IncludeOwnerHistory bool
}

// Request queues a new report for the vehicle.
func (s *Service) Request(ctx context.Context, vin, userID string, in RequestInput) (*Report, error) {
	if s == nil || s.repo == nil || s.vehicles == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	v, err := s.vehicles.GetByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		ID:                  uuid.NewString(),
		VehicleID:           v.ID,
		RequestedByID:       userID,
		Status:              StatusPending,
		Price:               DefaultPrice,
		IncludeTelemetry:    in.IncludeTelemetry,
		IncludeOwnerHistory: in.IncludeOwnerHistory,
	}
	if err := s.repo.Create(ctx, rep); err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{
		"report_id": rep.ID,
		"vin":       v.VIN,
		"user_id":   userID,
	}).Info("report queued")
	return rep, nil
}

// Get returns a report to its owner or an admin.
func (s *Service) Get(ctx context.Context, reportID, userID string, isAdmin bool) (*Report, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	rep, err := s.repo.FindByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && rep.RequestedByID != userID {
		return nil, ErrForbidden
	}
	return rep, nil
}

// PDF returns the rendered file for a completed, access-checked report.
func (s *Service) PDF(ctx context.Context, reportID, userID string, isAdmin bool) ([]byte, error) {
	rep, err := s.Get(ctx, reportID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	if rep.Status != StatusCompleted || rep.PDFKey == "" {
		return nil, fmt.Errorf("report not completed")
	}
	return s.store.Get(ctx, rep.PDFKey)
}

// ListOwn pages through the caller's reports.
func (s *Service) ListOwn(ctx context.Context, userID string, offset, limit int) ([]Report, int64, error) {
	if s == nil || s.repo == nil {
		return nil, 0, fmt.Errorf("service not initialized")
	}
	return s.repo.ListByUser(ctx, userID, offset, limit)
}

// Purchase runs the simulated payment and marks the report paid. One
// purchase per report.
func (s *Service) Purchase(ctx context.Context, reportID, userID, method string) (*Purchase, error) {
	rep, err := s.Get(ctx, reportID, userID, false)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindPurchaseByReport(ctx, rep.ID); err == nil {
		return nil, ErrAlreadyPurchased
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if method == "" {
		method = "credit_card"
	}
	now := time.Now()
	p := &Purchase{
		ID:            uuid.NewString(),
		ReportID:      rep.ID,
		UserID:        userID,
		Amount:        rep.Price,
		PaymentStatus: PaymentCompleted,
		PaymentMethod: method,
		TransactionID: fmt.Sprintf("TXN%d", now.UnixNano()),
		CompletedAt:   &now,
	}
	if err := s.repo.CreatePurchase(ctx, p); err != nil {
		return nil, err
	}

	rep.IsPaid = true
	if err := s.repo.Update(ctx, rep); err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{
		"report_id": rep.ID,
		"txn":       p.TransactionID,
		"amount":    p.Amount,
	}).Info("report purchased")
	return p, nil
}

// Retry requeues a failed report.
func (s *Service) Retry(ctx context.Context, reportID, userID string, isAdmin bool) (*Report, error) {
	rep, err := s.Get(ctx, reportID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	if err := ApplyTransition(rep, StatusPending, time.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// GenerateNext claims one pending report and runs the generation pipeline:
// assemble, store JSON, render PDF, write it to the object store. Returns
// false when the queue is empty.
func (s *Service) GenerateNext(ctx context.Context) (bool, error) {
	if s == nil || s.repo == nil || s.assembler == nil || s.store == nil {
		return false, fmt.Errorf("service not initialized")
	}
	rep, err := s.repo.ClaimNextPending(ctx, time.Now())
	if err != nil {
		return false, err
	}
	if rep == nil {
		return false, nil
	}

	if err := s.generate(ctx, rep); err != nil {
		s.log.Errorf("report %s generation failed: %v", rep.ID, err)
		if terr := ApplyTransition(rep, StatusFailed, time.Now()); terr == nil {
			rep.ErrorMessage = err.Error()
			if uerr := s.repo.Update(ctx, rep); uerr != nil {
				s.log.Errorf("report %s failure not persisted: %v", rep.ID, uerr)
			}
		}
		return true, err
	}
	return true, nil
}

func (s *Service) generate(ctx context.Context, rep *Report) error {
	doc, err := s.assembler.Assemble(ctx, rep)
	if err != nil {
		return err
	}
	payload, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	pdfBytes, err := RenderPDF(doc)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("reports/pdf/%s.pdf", rep.ID)
	if err := s.store.Put(ctx, key, pdfBytes); err != nil {
		return fmt.Errorf("store pdf: %w", err)
	}

	rep.JSONData = payload
	rep.PDFKey = key
	if err := ApplyTransition(rep, StatusCompleted, time.Now()); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, rep); err != nil {
		return err
	}

	s.log.WithFields(map[string]interface{}{
		"report_id": rep.ID,
		"pdf_key":   key,
	}).Info("report completed")

	if s.notifier != nil {
		msg := fmt.Sprintf("Your vehicle history report for %s is ready.", doc.Vehicle.VIN)
		if err := s.notifier.Send("Report ready", msg); err != nil {
			s.log.Warnf("report %s notification failed: %v", rep.ID, err)
		}
	}
	return nil
}
