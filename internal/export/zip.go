package export

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/nbeldi/medossier/internal/models"
	"github.com/nbeldi/medossier/internal/storage"
)

// Bundler writes a record's ZIP export: the PDF report plus every
// attachment blob under its original filename.
type Bundler struct {
	pdf   *PDFBuilder
	store storage.FileStore
}

func NewBundler(pdf *PDFBuilder, store storage.FileStore) *Bundler {
	return &Bundler{pdf: pdf, store: store}
}

// Dossier streams the ZIP bundle of a dossier to w.
func (b *Bundler) Dossier(ctx context.Context, d *models.MedicalDossier, w io.Writer) error {
	report, err := b.pdf.DossierReport(d)
	if err != nil {
		return err
	}
	return b.write(ctx, w, d.Reference, report, d.Attachments)
}

// PEC streams the ZIP bundle of a prise en charge to w.
func (b *Bundler) PEC(ctx context.Context, p *models.PriseEnCharge, w io.Writer) error {
	report, err := b.pdf.PECReport(p)
	if err != nil {
		return err
	}
	return b.write(ctx, w, p.Reference, report, p.Attachments)
}

func (b *Bundler) write(ctx context.Context, w io.Writer, reference string, report []byte, atts []models.Attachment) error {
	zw := zip.NewWriter(w)

	f, err := zw.Create(reference + ".pdf")
	if err != nil {
		return err
	}
	if _, err := f.Write(report); err != nil {
		return err
	}

	seen := map[string]int{}
	for _, a := range atts {
		name := safeName(a.Name)
		// Duplicate filenames get a numeric suffix so no entry shadows
		// another.
		seen[name]++
		if n := seen[name]; n > 1 {
			ext := path.Ext(name)
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
		}

		src, err := b.store.Open(ctx, a.Locator)
		if err != nil {
			return fmt.Errorf("open attachment %s: %w", a.Name, err)
		}
		dst, err := zw.Create("pieces_jointes/" + name)
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if err != nil {
			return err
		}
	}

	return zw.Close()
}

// safeName strips any path component from a client-supplied filename.
func safeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == "" {
		return "fichier"
	}
	return name
}
