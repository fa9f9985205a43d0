// Package document renders approved response packages as xlsx summaries.
package document

import (
	"context"
	"fmt"
	"path"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

const (
	sheetName = "Svarpakke"
	docDir    = "pakker"
	timeFmt   = "2006-01-02 15:04"
)

var trackOrder = []entity.TrackType{entity.TrackGrunnlag, entity.TrackVederlag, entity.TrackFrist}

// XLSXGenerator implements port.DocumentGenerator
type XLSXGenerator struct {
	storage port.FileStorage
	logger  *zap.Logger
}

// NewXLSXGenerator creates a generator saving documents through storage
func NewXLSXGenerator(storage port.FileStorage, logger *zap.Logger) *XLSXGenerator {
	return &XLSXGenerator{storage: storage, logger: logger}
}

// Generate writes the package summary and returns its storage-relative path
func (g *XLSXGenerator) Generate(ctx context.Context, p *entity.BhResponsPakke) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return "", fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := g.fill(f, p); err != nil {
		return "", err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("failed to render workbook: %w", err)
	}

	rel := path.Join(docDir, p.ID+".xlsx")
	if err := g.storage.Save(ctx, rel, buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to store document: %w", err)
	}

	g.logger.Info("Package document generated",
		zap.String("pakke_id", p.ID),
		zap.String("case_id", p.CaseID),
		zap.String("path", rel))
	return rel, nil
}

func (g *XLSXGenerator) fill(f *excelize.File, p *entity.BhResponsPakke) error {
	w := &sheetWriter{f: f}

	w.row("Sak", p.CaseID)
	w.row("Pakke", p.ID)
	w.row("Sendt av", actorLabel(p.SubmittedBy))
	w.row("Sendt", p.SubmittedAt.Format(timeFmt))
	w.row()

	w.row("Spor", "Resultat", "Beløp", "Dager", "Begrunnelse")
	for _, track := range trackOrder {
		d, ok := p.Draft(track)
		if !ok {
			continue
		}
		var belop, dager any
		if d.Belop != nil {
			belop = *d.Belop
		}
		if d.Dager != nil {
			dager = *d.Dager
		}
		w.row(track.String(), d.Result.String(), belop, dager, d.Begrunnelse)
	}
	w.row()

	w.row("Vederlag", p.VederlagBelop)
	w.row("Frist", p.FristBelop, fmt.Sprintf("%d dager à %.0f", p.FristDager, p.Dagmulktsats))
	w.row("Samlet beløp", p.SamletBelop)
	w.row()

	w.row("Rolle", "Status", "Godkjent av", "Tidspunkt", "Kommentar")
	for _, s := range p.Steps {
		at := ""
		if s.ApprovedAt != nil {
			at = s.ApprovedAt.Format(timeFmt)
		}
		w.row(s.Role.String(), string(s.Status), s.ApprovedBy, at, s.Comment)
	}

	if w.err != nil {
		return fmt.Errorf("failed to fill sheet: %w", w.err)
	}
	if err := f.SetColWidth(sheetName, "A", "E", 20); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

// sheetWriter appends rows and keeps the first error
type sheetWriter struct {
	f    *excelize.File
	next int
	err  error
}

func (w *sheetWriter) row(values ...any) {
	w.next++
	if w.err != nil || len(values) == 0 {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, w.next)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetSheetRow(sheetName, cell, &values)
}

func actorLabel(a entity.Actor) string {
	if a.Name == "" {
		return a.ID
	}
	return fmt.Sprintf("%s (%s)", a.Name, a.Role)
}

// Verify interface compliance
var _ port.DocumentGenerator = (*XLSXGenerator)(nil)
