package refs

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nbeldi/medossier/internal/models"
)

func setupRefsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.MedicalDossier{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedDossier(t *testing.T, db *gorm.DB, ref string) {
	t.Helper()
	u := models.User{Email: ref + "@test", FullName: "U", Password: "x", Role: models.RoleAgent}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("user: %v", err)
	}
	d := models.MedicalDossier{
		Reference: ref, Status: models.StatusDraft,
		CreatedByID: u.ID, EmployerID: u.ID,
		StartDate: time.Now(),
	}
	if err := db.Create(&d).Error; err != nil {
		t.Fatalf("dossier %s: %v", ref, err)
	}
}

var refPattern = regexp.MustCompile(`^(DM|PEC)-\d{8}-\d{4}$`)

func TestNext_FirstOfDay(t *testing.T) {
	db := setupRefsDB(t)
	day := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	ref, err := Next(db, &models.MedicalDossier{}, "DM", day)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ref != "DM-20250101-0001" {
		t.Errorf("expected DM-20250101-0001, got %s", ref)
	}
	if !refPattern.MatchString(ref) {
		t.Errorf("reference %s does not match pattern", ref)
	}
}

func TestNext_Increments(t *testing.T) {
	db := setupRefsDB(t)
	day := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	seedDossier(t, db, "DM-20250101-0001")
	seedDossier(t, db, "DM-20250101-0007")

	ref, err := Next(db, &models.MedicalDossier{}, "DM", day)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ref != "DM-20250101-0008" {
		t.Errorf("expected DM-20250101-0008, got %s", ref)
	}
}

func TestNext_ScopedByDay(t *testing.T) {
	db := setupRefsDB(t)
	seedDossier(t, db, "DM-20250101-0042")

	next, err := Next(db, &models.MedicalDossier{}, "DM", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next != "DM-20250102-0001" {
		t.Errorf("expected fresh counter for new day, got %s", next)
	}
}

func TestNext_UnparseableSuffixFallsBack(t *testing.T) {
	db := setupRefsDB(t)
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDossier(t, db, "DM-20250101-XXXX")

	ref, err := Next(db, &models.MedicalDossier{}, "DM", day)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if ref != "DM-20250101-0001" {
		t.Errorf("expected fallback to 0001, got %s", ref)
	}
}

func TestParseSuffix(t *testing.T) {
	if n, ok := parseSuffix("DM-20250101-0012"); !ok || n != 12 {
		t.Errorf("expected (12, true), got (%d, %v)", n, ok)
	}
	if _, ok := parseSuffix("garbage"); ok {
		t.Error("expected parse failure for reference without dash suffix")
	}
	if _, ok := parseSuffix("DM-20250101-"); ok {
		t.Error("expected parse failure for empty suffix")
	}
}
