package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AutoSentinel/AutoSentinel/internal/crowd"
	"github.com/AutoSentinel/AutoSentinel/internal/history"
	"github.com/AutoSentinel/AutoSentinel/internal/telemetry"
	"github.com/AutoSentinel/AutoSentinel/internal/vehicle"
)

// Document is the assembled report content, stored as the report's JSON
// payload and rendered to PDF.
type Document struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Vehicle     vehicle.Vehicle `json:"vehicle"`

	Registrations []vehicle.Registration    `json:"registrations"`
	TitleEvents   []history.TitleEvent      `json:"title_events"`
	Accidents     []history.AccidentRecord  `json:"accidents"`
	Mileage       []history.MileageRecord   `json:"mileage_records"`
	Ownership     []history.OwnershipRecord `json:"ownership_records,omitempty"`
	Thefts        []history.TheftRecord     `json:"theft_records"`

	CrowdReports []crowd.Report    `json:"crowdsourced_reports"`
	Telemetry    []telemetry.Trace `json:"telemetry,omitempty"`

	Summary Summary `json:"summary"`
}

// Summary is the headline block at the top of a report.
type Summary struct {
	TitleStatus       string `json:"title_status"`
	IsStolen          bool   `json:"is_stolen"`
	AccidentCount     int    `json:"accident_count"`
	OwnerCount        int    `json:"owner_count"`
	LastKnownMileage  int    `json:"last_known_mileage"`
	RollbackSuspected bool   `json:"rollback_suspected"`
}

// Assembler gathers every data stream for one vehicle into a Document.
type Assembler struct {
	vehicles  *vehicle.Service
	histories *history.Service
	crowds    *crowd.Service
	traces    *telemetry.Service
}

func NewAssembler(vehicles *vehicle.Service, histories *history.Service, crowds *crowd.Service, traces *telemetry.Service) *Assembler {
	return &Assembler{vehicles: vehicles, histories: histories, crowds: crowds, traces: traces}
}

// Assemble builds the document for a report. Telemetry is included only
// when requested and the vehicle consents; owner history only when
// requested.
func (a *Assembler) Assemble(ctx context.Context, rep *Report) (*Document, error) {
	if a == nil || a.vehicles == nil {
		return nil, fmt.Errorf("assembler not initialized")
	}
	v, err := a.vehicles.Repo().FindByID(ctx, rep.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("load vehicle: %w", err)
	}

	doc := &Document{
		GeneratedAt: time.Now().UTC(),
		Vehicle:     *v,
	}

	if doc.Registrations, err = a.vehicles.Repo().Registrations(ctx, v.ID); err != nil {
		return nil, fmt.Errorf("load registrations: %w", err)
	}

	hist, err := a.histories.VehicleHistory(ctx, v.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	doc.TitleEvents = hist.TitleEvents
	doc.Accidents = hist.Accidents
	doc.Mileage = hist.MileageRecords
	doc.Thefts = hist.TheftRecords
	if rep.IncludeOwnerHistory {
		doc.Ownership = hist.OwnershipRecords
	}

	if doc.CrowdReports, err = a.crowds.Repo().VerifiedForVehicle(ctx, v.ID); err != nil {
		return nil, fmt.Errorf("load crowd reports: %w", err)
	}

	if rep.IncludeTelemetry {
		traces, err := a.traces.Recent(ctx, v.VIN, 100)
		if err != nil && !errors.Is(err, telemetry.ErrNoConsent) {
			return nil, fmt.Errorf("load telemetry: %w", err)
		}
		// without consent the section is silently omitted
		doc.Telemetry = traces
	}

	doc.Summary = summarize(v, hist)
	return doc, nil
}

func summarize(v *vehicle.Vehicle, hist *history.VehicleHistory) Summary {
	s := Summary{
		TitleStatus:      string(v.CurrentTitleStatus),
		IsStolen:         v.IsStolen,
		AccidentCount:    len(hist.Accidents),
		OwnerCount:       len(hist.OwnershipRecords),
		LastKnownMileage: v.CurrentMileage,
	}
	if s.OwnerCount == 0 {
		s.OwnerCount = v.CurrentOwnerCount
	}
	for _, m := range hist.MileageRecords {
		if m.IsRollbackSuspected {
			s.RollbackSuspected = true
			break
		}
	}
	return s
}

// Marshal renders the document to the stored JSON payload.
func (d *Document) Marshal() (json.RawMessage, error) {
	return json.Marshal(d)
}
