package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// RenderPDF lays the assembled document out as a printable report.
func RenderPDF(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Vehicle History Report %s", doc.Vehicle.VIN), false)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "AutoSentinel Vehicle History Report")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s", doc.GeneratedAt.Format(time.RFC1123)))
	pdf.Ln(10)

	v := doc.Vehicle
	sectionTitle(pdf, "Vehicle")
	kv(pdf, "VIN", v.VIN)
	kv(pdf, "Vehicle", fmt.Sprintf("%d %s %s %s", v.Year, v.Make, v.Model, v.Trim))
	kv(pdf, "Body / Color", fmt.Sprintf("%s / %s", v.BodyStyle, v.Color))
	kv(pdf, "Engine", v.Engine)
	kv(pdf, "Title status", string(v.CurrentTitleStatus))
	kv(pdf, "Current mileage", fmt.Sprintf("%d mi", v.CurrentMileage))
	pdf.Ln(4)

	sectionTitle(pdf, "Summary")
	s := doc.Summary
	kv(pdf, "Accidents on record", fmt.Sprintf("%d", s.AccidentCount))
	kv(pdf, "Owners", fmt.Sprintf("%d", s.OwnerCount))
	kv(pdf, "Reported stolen", yesNo(s.IsStolen))
	kv(pdf, "Odometer rollback suspected", yesNo(s.RollbackSuspected))
	pdf.Ln(4)

	if len(doc.TitleEvents) > 0 {
		sectionTitle(pdf, "Title History")
		for _, e := range doc.TitleEvents {
			line(pdf, fmt.Sprintf("%s  %-14s %-10s %s",
				e.EventDate.Format("2006-01-02"), e.EventType, e.TitleStatus, e.State))
		}
		pdf.Ln(4)
	}

	if len(doc.Accidents) > 0 {
		sectionTitle(pdf, "Accident History")
		for _, a := range doc.Accidents {
			loc := a.LocationCity
			if a.LocationState != "" {
				loc += ", " + a.LocationState
			}
			line(pdf, fmt.Sprintf("%s  %-10s %s", a.AccidentDate.Format("2006-01-02"), a.Severity, loc))
			if a.DamageDescription != "" {
				line(pdf, "    "+a.DamageDescription)
			}
		}
		pdf.Ln(4)
	}

	if len(doc.Mileage) > 0 {
		sectionTitle(pdf, "Odometer Readings")
		for _, m := range doc.Mileage {
			flag := ""
			if m.IsRollbackSuspected {
				flag = "  ** ROLLBACK SUSPECTED **"
			}
			line(pdf, fmt.Sprintf("%s  %8d mi  (%s)%s",
				m.RecordedDate.Format("2006-01-02"), m.Mileage, m.Source, flag))
		}
		pdf.Ln(4)
	}

	if len(doc.Ownership) > 0 {
		sectionTitle(pdf, "Ownership History")
		for _, o := range doc.Ownership {
			end := "present"
			if o.OwnershipEnd != nil {
				end = o.OwnershipEnd.Format("2006-01-02")
			}
			line(pdf, fmt.Sprintf("Owner %d  %-12s %s - %s  %s",
				o.OwnerSequence, o.OwnerType, o.OwnershipStart.Format("2006-01-02"), end, o.State))
		}
		pdf.Ln(4)
	}

	if len(doc.Thefts) > 0 {
		sectionTitle(pdf, "Theft Records")
		for _, t := range doc.Thefts {
			line(pdf, fmt.Sprintf("%s  %-10s %s  case %s",
				t.ReportedDate.Format("2006-01-02"), t.Status, t.ReportingAgency, t.CaseNumber))
		}
		pdf.Ln(4)
	}

	if len(doc.CrowdReports) > 0 {
		sectionTitle(pdf, "Community Reports (verified)")
		for _, c := range doc.CrowdReports {
			line(pdf, fmt.Sprintf("%s  %-12s %s",
				c.ReportDate.Format("2006-01-02"), c.ReportType, c.Description))
		}
		pdf.Ln(4)
	}

	if len(doc.Telemetry) > 0 {
		sectionTitle(pdf, "Recent Telemetry")
		line(pdf, fmt.Sprintf("%d trace points on record; latest at %s",
			len(doc.Telemetry), doc.Telemetry[0].Timestamp.Format(time.RFC3339)))
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, title)
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
}

func kv(pdf *gofpdf.Fpdf, key, val string) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(55, 6, key, "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, val, "", 1, "L", false, 0, "")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func line(pdf *gofpdf.Fpdf, s string) {
	pdf.CellFormat(0, 5, s, "", 1, "L", false, 0, "")
}
