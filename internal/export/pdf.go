// Package export renders records to their outward-facing formats: the
// printable PDF report and the ZIP bundle carrying the report with the
// record's attachments.
package export

import (
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/nbeldi/medossier/internal/models"
)

const dateLayout = "02/01/2006"

// PDFBuilder renders record reports. The clock is injectable so the
// "Généré le" footer is reproducible in tests.
type PDFBuilder struct {
	Now func() time.Time
}

func NewPDFBuilder() *PDFBuilder {
	return &PDFBuilder{Now: time.Now}
}

// DossierReport renders the printable report of a medical dossier.
func (b *PDFBuilder) DossierReport(d *models.MedicalDossier) ([]byte, error) {
	m := b.newDocument()

	b.header(m, "RAPPORT MÉDICAL", d.Reference, d.Status)

	b.section(m, "INFORMATIONS GÉNÉRALES")
	b.field(m, "Employé:", userName(d.Employer))
	b.field(m, "Département:", d.Department)
	b.field(m, "Catégorie:", string(d.Category))
	b.field(m, "Priorité:", models.PriorityLabels[d.Priority])
	b.field(m, "Période:", dateRange(d.StartDate, d.EndDate))
	b.field(m, "Contrôleur:", userName(d.Controller))

	b.section(m, "DÉTAILS MÉDICAUX")
	b.field(m, "Médecin:", d.Doctor)
	b.paragraph(m, "Diagnostic:", d.Diagnosis)
	b.paragraph(m, "Plan de traitement:", d.TreatmentPlan)
	if d.Comments != "" {
		b.paragraph(m, "Commentaires:", d.Comments)
	}

	b.attachments(m, d.Attachments)
	b.footer(m)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render dossier %s: %w", d.Reference, err)
	}
	return doc.GetBytes(), nil
}

// PECReport renders the printable report of a prise en charge.
func (b *PDFBuilder) PECReport(p *models.PriseEnCharge) ([]byte, error) {
	m := b.newDocument()

	b.header(m, "PRISE EN CHARGE", p.Reference, p.Status)

	b.section(m, "INFORMATIONS GÉNÉRALES")
	b.field(m, "Patient:", userName(p.Patient))
	b.field(m, "Département:", p.Department)
	b.field(m, "Établissement:", p.Institution)
	b.field(m, "Type de soins:", string(p.CareType))
	b.field(m, "Période:", dateRange(p.StartDate, p.EndDate))
	b.field(m, "Contrôleur:", userName(p.Controller))

	b.section(m, "DÉTAILS FINANCIERS")
	b.field(m, "Coût estimé:", money(p.EstimatedCost))
	b.field(m, "Taux de couverture:", fmt.Sprintf("%d%%", p.CoveragePercentage))
	b.field(m, "Reste à charge:", money(p.Remainder()))

	b.section(m, "DÉTAILS MÉDICAUX")
	b.field(m, "Médecin:", p.Physician)
	b.paragraph(m, "Diagnostic:", p.Diagnosis)
	if p.Comments != "" {
		b.paragraph(m, "Commentaires:", p.Comments)
	}

	b.attachments(m, p.Attachments)
	b.footer(m)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render pec %s: %w", p.Reference, err)
	}
	return doc.GetBytes(), nil
}

func (b *PDFBuilder) newDocument() core.Maroto {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(15).
		WithRightMargin(15).
		WithTopMargin(15).
		Build()
	return maroto.New(cfg)
}

func (b *PDFBuilder) header(m core.Maroto, title, reference string, status models.Status) {
	m.AddRows(
		row.New(12).Add(
			text.NewCol(12, title, props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Center}),
		),
		row.New(8).Add(
			text.NewCol(6, "Référence: "+reference, props.Text{Size: 11, Style: fontstyle.Bold}),
			text.NewCol(6, "Statut: "+status.Label(), props.Text{Size: 11, Align: align.Right}),
		),
		row.New(4).Add(col.New(12).Add(line.New())),
	)
}

func (b *PDFBuilder) section(m core.Maroto, title string) {
	m.AddRows(
		row.New(10).Add(
			text.NewCol(12, title, props.Text{Size: 12, Style: fontstyle.Bold, Top: 3}),
		),
	)
}

func (b *PDFBuilder) field(m core.Maroto, label, value string) {
	if value == "" {
		value = "-"
	}
	m.AddRows(
		row.New(6).Add(
			text.NewCol(4, label, props.Text{Size: 10, Style: fontstyle.Bold}),
			text.NewCol(8, value, props.Text{Size: 10}),
		),
	)
}

func (b *PDFBuilder) paragraph(m core.Maroto, label, value string) {
	m.AddRows(
		row.New(5).Add(
			text.NewCol(12, label, props.Text{Size: 10, Style: fontstyle.Bold}),
		),
		row.New(10).Add(
			text.NewCol(12, value, props.Text{Size: 10}),
		),
	)
}

func (b *PDFBuilder) attachments(m core.Maroto, atts []models.Attachment) {
	if len(atts) == 0 {
		return
	}
	b.section(m, "PIÈCES JOINTES")
	for _, a := range atts {
		m.AddRows(
			row.New(5).Add(
				text.NewCol(8, a.Name, props.Text{Size: 9}),
				text.NewCol(4, fmt.Sprintf("%s, %d Ko", a.Type, a.SizeKB), props.Text{Size: 9, Align: align.Right}),
			),
		)
	}
}

func (b *PDFBuilder) footer(m core.Maroto) {
	stamp := b.Now().Format("02/01/2006 à 15:04")
	m.AddRows(
		row.New(12).Add(
			text.NewCol(12,
				fmt.Sprintf("Généré le %s - Système de Gestion des Dossiers Médicaux", stamp),
				props.Text{Size: 8, Top: 6, Align: align.Center}),
		),
	)
}

func userName(u *models.User) string {
	if u == nil {
		return ""
	}
	return u.FullName
}

func dateRange(start time.Time, end *time.Time) string {
	if end == nil {
		return "Du " + start.Format(dateLayout)
	}
	return fmt.Sprintf("Du %s au %s", start.Format(dateLayout), end.Format(dateLayout))
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
