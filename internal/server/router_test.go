package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nbeldi/medossier/auth"
	"github.com/nbeldi/medossier/internal/models"
	"github.com/nbeldi/medossier/internal/services"
	"github.com/nbeldi/medossier/internal/storage"
)

type testApp struct {
	handler http.Handler
	db      *gorm.DB
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.MedicalDossier{}, &models.PriseEnCharge{},
		&models.Attachment{}, &models.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	handler := New(Deps{DB: db, Assigner: services.FirstAvailableAssigner{}, Store: store})
	return &testApp{handler: handler, db: db}
}

func (a *testApp) user(t *testing.T, email string, role models.Role, dept string) *models.User {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	u := &models.User{Email: email, FullName: email, Password: string(hash), Role: role, Department: dept, Active: true}
	if err := a.db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func sessionCookie(u *models.User) *http.Cookie {
	w := httptest.NewRecorder()
	auth.CreateSession(w, u.ID)
	return w.Result().Cookies()[0]
}

func (a *testApp) do(t *testing.T, method, path string, cookie *http.Cookie, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	app := newTestApp(t)
	if w := app.do(t, http.MethodGet, "/health", nil, nil); w.Code != http.StatusOK {
		t.Errorf("/health = %d", w.Code)
	}
	if w := app.do(t, http.MethodGet, "/healthz", nil, nil); w.Code != http.StatusOK {
		t.Errorf("/healthz = %d", w.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	app := newTestApp(t)

	// No session: protected routes reject, signup works.
	if w := app.do(t, http.MethodGet, "/api/dossiers", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated list = %d", w.Code)
	}

	w := app.do(t, http.MethodPost, "/api/auth/signup", nil, map[string]any{
		"email": "New.User@Test", "password": "longenough", "full_name": "New User",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup = %d body=%s", w.Code, w.Body.String())
	}
	created := decodeBody[models.User](t, w)
	if created.Role != models.RoleNormal {
		t.Errorf("signup role = %s, want NORMAL", created.Role)
	}
	if strings.Contains(w.Body.String(), "password") && strings.Contains(w.Body.String(), "longenough") {
		t.Error("password leaked in response")
	}

	// Duplicate email conflicts.
	if w := app.do(t, http.MethodPost, "/api/auth/signup", nil, map[string]any{
		"email": "new.user@test", "password": "longenough", "full_name": "Dup",
	}); w.Code != http.StatusConflict {
		t.Errorf("duplicate signup = %d", w.Code)
	}

	if w := app.do(t, http.MethodPost, "/api/auth/login", nil, map[string]any{
		"email": "new.user@test", "password": "wrong-password",
	}); w.Code != http.StatusUnauthorized {
		t.Errorf("bad login = %d", w.Code)
	}

	w = app.do(t, http.MethodPost, "/api/auth/login", nil, map[string]any{
		"email": "new.user@test", "password": "longenough",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d", w.Code)
	}
	cookie := w.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	app.handler.ServeHTTP(me, req)
	if me.Code != http.StatusOK {
		t.Errorf("me = %d", me.Code)
	}

	// Deactivated account: session no longer opens the door.
	app.db.Model(&models.User{}).Where("id = ?", created.ID).Update("active", false)
	if w := app.do(t, http.MethodGet, "/api/dossiers", cookie, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("deactivated list = %d", w.Code)
	}
}

func TestDossierLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	admin := app.user(t, "admin@t", models.RoleAdmin, "")
	controller := app.user(t, "ctrl@t", models.RoleController, "")
	agent := app.user(t, "agent@t", models.RoleAgent, "RH")
	employee := app.user(t, "emp@t", models.RoleNormal, "Finance")

	agentC, ctrlC, adminC := sessionCookie(agent), sessionCookie(controller), sessionCookie(admin)

	w := app.do(t, http.MethodPost, "/api/dossiers", agentC, map[string]any{
		"employer_id": employee.ID, "start_date": "2025-03-10",
		"doctor": "Dr. Keita", "diagnosis": "Lombalgie", "treatment_plan": "Kiné",
		"status": "submitted",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d body=%s", w.Code, w.Body.String())
	}
	d := decodeBody[models.MedicalDossier](t, w)
	if !strings.HasPrefix(d.Reference, "DM-") {
		t.Errorf("reference = %q", d.Reference)
	}
	if d.Department != "Finance" {
		t.Errorf("department = %q, want subject's", d.Department)
	}
	if d.ControllerID == nil {
		t.Error("controller not assigned on direct submit")
	}
	base := fmt.Sprintf("/api/dossiers/%d", d.ID)

	// Review then approve as controller.
	for _, action := range []string{"review", "approve"} {
		if w := app.do(t, http.MethodPost, base+"/transition", ctrlC, map[string]any{"action": action}); w.Code != http.StatusOK {
			t.Fatalf("%s = %d body=%s", action, w.Code, w.Body.String())
		}
	}

	// Approved: agent edit is locked, admin edit passes.
	payload := map[string]any{
		"employer_id": employee.ID, "start_date": "2025-03-10",
		"doctor": "Dr. Keita", "diagnosis": "Lombalgie", "treatment_plan": "Kiné + repos",
	}
	if w := app.do(t, http.MethodPut, base, agentC, payload); w.Code != http.StatusLocked {
		t.Errorf("locked edit = %d", w.Code)
	}
	if w := app.do(t, http.MethodPut, base, adminC, payload); w.Code != http.StatusOK {
		t.Errorf("admin edit = %d body=%s", w.Code, w.Body.String())
	}

	// Audit trail: reviewers only.
	w = app.do(t, http.MethodGet, base+"/audit", ctrlC, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("audit = %d", w.Code)
	}
	entries := decodeBody[[]models.AuditLog](t, w)
	if len(entries) < 3 {
		t.Errorf("audit entries = %d, want create + 2 status changes at least", len(entries))
	}
	if w := app.do(t, http.MethodGet, base+"/audit", agentC, nil); w.Code != http.StatusForbidden {
		t.Errorf("agent audit = %d", w.Code)
	}

	// PDF report.
	w = app.do(t, http.MethodGet, base+"/report", ctrlC, nil)
	if w.Code != http.StatusOK || !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Errorf("report = %d, content-type %s", w.Code, w.Header().Get("Content-Type"))
	}
	// ZIP bundle.
	w = app.do(t, http.MethodGet, base+"/bundle", ctrlC, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/zip" {
		t.Errorf("bundle = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
}

func TestDossierVisibility(t *testing.T) {
	app := newTestApp(t)
	agent := app.user(t, "agent@t", models.RoleAgent, "RH")
	employee := app.user(t, "emp@t", models.RoleNormal, "Finance")
	stranger := app.user(t, "stranger@t", models.RoleNormal, "")

	w := app.do(t, http.MethodPost, "/api/dossiers", sessionCookie(agent), map[string]any{
		"employer_id": employee.ID, "start_date": "2025-03-10",
		"doctor": "Dr. A", "diagnosis": "X", "treatment_plan": "Y",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	d := decodeBody[models.MedicalDossier](t, w)

	// The subject sees it; a stranger gets the same 404 as a missing id.
	if w := app.do(t, http.MethodGet, fmt.Sprintf("/api/dossiers/%d", d.ID), sessionCookie(employee), nil); w.Code != http.StatusOK {
		t.Errorf("subject view = %d", w.Code)
	}
	// Viewing does not grant exporting.
	if w := app.do(t, http.MethodGet, fmt.Sprintf("/api/dossiers/%d/report", d.ID), sessionCookie(employee), nil); w.Code != http.StatusForbidden {
		t.Errorf("subject report = %d, want 403", w.Code)
	}
	hidden := app.do(t, http.MethodGet, fmt.Sprintf("/api/dossiers/%d", d.ID), sessionCookie(stranger), nil)
	missing := app.do(t, http.MethodGet, "/api/dossiers/424242", sessionCookie(stranger), nil)
	if hidden.Code != http.StatusNotFound || missing.Code != http.StatusNotFound {
		t.Errorf("hidden = %d, missing = %d, want both 404", hidden.Code, missing.Code)
	}
	if hidden.Body.String() != missing.Body.String() {
		t.Error("hidden and missing responses differ")
	}

	// NORMAL users cannot create.
	if w := app.do(t, http.MethodPost, "/api/dossiers", sessionCookie(stranger), map[string]any{
		"employer_id": stranger.ID, "start_date": "2025-03-10",
		"doctor": "Dr. A", "diagnosis": "X", "treatment_plan": "Y",
	}); w.Code != http.StatusForbidden {
		t.Errorf("normal create = %d", w.Code)
	}
}

func TestPECValidationOverHTTP(t *testing.T) {
	app := newTestApp(t)
	agent := app.user(t, "agent@t", models.RoleAgent, "RH")
	patient := app.user(t, "pat@t", models.RoleNormal, "Finance")
	c := sessionCookie(agent)

	w := app.do(t, http.MethodPost, "/api/pecs", c, map[string]any{
		"patient_id": patient.ID, "start_date": "2025-03-10",
		"institution": "", "diagnosis": "Consultation",
		"estimated_cost": -5, "coverage_percentage": 150,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid pec = %d body=%s", w.Code, w.Body.String())
	}
	resp := decodeBody[struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}](t, w)
	for _, f := range []string{"institution", "estimated_cost", "coverage_percentage"} {
		if resp.Fields[f] == "" {
			t.Errorf("missing violation for %s: %v", f, resp.Fields)
		}
	}

	w = app.do(t, http.MethodPost, "/api/pecs", c, map[string]any{
		"patient_id": patient.ID, "start_date": "2025-03-10",
		"institution": "Clinique X", "diagnosis": "Consultation",
		"care_type": "surgery", "estimated_cost": 50000, "coverage_percentage": 80,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("valid pec = %d body=%s", w.Code, w.Body.String())
	}
	p := decodeBody[models.PriseEnCharge](t, w)
	if !strings.HasPrefix(p.Reference, "PEC-") {
		t.Errorf("reference = %q", p.Reference)
	}
	if p.CareType != models.CareSurgery {
		t.Errorf("care_type = %s", p.CareType)
	}
}

func TestAttachmentUploadDownloadDelete(t *testing.T) {
	app := newTestApp(t)
	agent := app.user(t, "agent@t", models.RoleAgent, "RH")
	employee := app.user(t, "emp@t", models.RoleNormal, "RH")
	c := sessionCookie(agent)

	w := app.do(t, http.MethodPost, "/api/dossiers", c, map[string]any{
		"employer_id": employee.ID, "start_date": "2025-03-10",
		"doctor": "Dr. A", "diagnosis": "X", "treatment_plan": "Y",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	d := decodeBody[models.MedicalDossier](t, w)
	base := fmt.Sprintf("/api/dossiers/%d/attachments", d.ID)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "ordonnance.pdf")
	part.Write([]byte("pdf-bytes"))
	mw.WriteField("type", "prescription")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, base, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(c)
	up := httptest.NewRecorder()
	app.handler.ServeHTTP(up, req)
	if up.Code != http.StatusCreated {
		t.Fatalf("upload = %d body=%s", up.Code, up.Body.String())
	}
	att := decodeBody[models.Attachment](t, up)
	if att.Type != models.AttachmentPrescription {
		t.Errorf("type = %s", att.Type)
	}

	dl := app.do(t, http.MethodGet, fmt.Sprintf("%s/%d", base, att.ID), c, nil)
	if dl.Code != http.StatusOK || dl.Body.String() != "pdf-bytes" {
		t.Errorf("download = %d body=%q", dl.Code, dl.Body.String())
	}

	if w := app.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, att.ID), c, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := app.do(t, http.MethodGet, fmt.Sprintf("%s/%d", base, att.ID), c, nil); w.Code != http.StatusNotFound {
		t.Errorf("download after delete = %d", w.Code)
	}
}

func TestScannedAttachment(t *testing.T) {
	app := newTestApp(t)
	agent := app.user(t, "agent@t", models.RoleAgent, "RH")
	employee := app.user(t, "emp@t", models.RoleNormal, "RH")
	c := sessionCookie(agent)

	w := app.do(t, http.MethodPost, "/api/dossiers", c, map[string]any{
		"employer_id": employee.ID, "start_date": "2025-03-10",
		"doctor": "Dr. A", "diagnosis": "X", "treatment_plan": "Y",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	d := decodeBody[models.MedicalDossier](t, w)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "radio.png")
	part.Write([]byte("png-bytes"))
	// A client-supplied type is ignored on the scan route.
	mw.WriteField("type", "report")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/dossiers/%d/attachments/scan", d.ID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(c)
	up := httptest.NewRecorder()
	app.handler.ServeHTTP(up, req)
	if up.Code != http.StatusCreated {
		t.Fatalf("scan upload = %d body=%s", up.Code, up.Body.String())
	}
	att := decodeBody[models.Attachment](t, up)
	if att.Type != models.AttachmentScan {
		t.Errorf("type = %s, want SCAN", att.Type)
	}
	if att.Name != "Scanned_radio.png" {
		t.Errorf("name = %q, want Scanned_ prefix", att.Name)
	}
}

func TestGlobalAuditTrail(t *testing.T) {
	app := newTestApp(t)
	controller := app.user(t, "ctrl@t", models.RoleController, "")
	agent := app.user(t, "agent@t", models.RoleAgent, "RH")
	employee := app.user(t, "emp@t", models.RoleNormal, "RH")
	agentC := sessionCookie(agent)

	// Two records so the trail spans kinds.
	w := app.do(t, http.MethodPost, "/api/dossiers", agentC, map[string]any{
		"employer_id": employee.ID, "start_date": "2025-03-10",
		"doctor": "Dr. A", "diagnosis": "X", "treatment_plan": "Y",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create dossier = %d", w.Code)
	}
	w = app.do(t, http.MethodPost, "/api/pecs", agentC, map[string]any{
		"patient_id": employee.ID, "institution": "Clinique B", "start_date": "2025-04-01",
		"diagnosis": "Z", "estimated_cost": 100, "coverage_percentage": 80,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create pec = %d", w.Code)
	}

	if w := app.do(t, http.MethodGet, "/api/audit", agentC, nil); w.Code != http.StatusForbidden {
		t.Errorf("agent audit = %d", w.Code)
	}

	w = app.do(t, http.MethodGet, "/api/audit", sessionCookie(controller), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("controller audit = %d body=%s", w.Code, w.Body.String())
	}
	trail := decodeBody[struct {
		Items []models.AuditLog `json:"items"`
		Total int               `json:"total"`
	}](t, w)
	if trail.Total < 2 {
		t.Fatalf("total = %d, want entries for both records", trail.Total)
	}
	kinds := map[string]bool{}
	for _, e := range trail.Items {
		kinds[e.RecordKind] = true
	}
	if !kinds[models.KindDossier] || !kinds[models.KindPEC] {
		t.Errorf("kinds = %v, want both record kinds", kinds)
	}
	for i := 1; i < len(trail.Items); i++ {
		if trail.Items[i-1].ID < trail.Items[i].ID {
			t.Fatal("trail not newest first")
		}
	}

	if w := app.do(t, http.MethodGet, "/api/audit?limit=0", sessionCookie(controller), nil); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 = %d", w.Code)
	}
	w = app.do(t, http.MethodGet, "/api/audit?limit=1", sessionCookie(controller), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("limit=1 = %d", w.Code)
	}
	limited := decodeBody[struct {
		Items []models.AuditLog `json:"items"`
	}](t, w)
	if len(limited.Items) != 1 {
		t.Errorf("limited items = %d, want 1", len(limited.Items))
	}
}

func TestStatsEndpoint(t *testing.T) {
	app := newTestApp(t)
	controller := app.user(t, "ctrl@t", models.RoleController, "")
	agent := app.user(t, "agent@t", models.RoleAgent, "RH")

	if w := app.do(t, http.MethodGet, "/api/stats", sessionCookie(agent), nil); w.Code != http.StatusForbidden {
		t.Errorf("agent stats = %d", w.Code)
	}
	w := app.do(t, http.MethodGet, "/api/stats", sessionCookie(controller), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("controller stats = %d", w.Code)
	}
}

func TestUserAdministration(t *testing.T) {
	app := newTestApp(t)
	admin := app.user(t, "admin@t", models.RoleAdmin, "")
	agent := app.user(t, "agent@t", models.RoleAgent, "RH")
	target := app.user(t, "target@t", models.RoleNormal, "")

	adminC := sessionCookie(admin)

	if w := app.do(t, http.MethodPatch, fmt.Sprintf("/api/users/%d", target.ID), sessionCookie(agent),
		map[string]any{"role": "CONTROLLER"}); w.Code != http.StatusForbidden {
		t.Errorf("non-admin patch = %d", w.Code)
	}

	w := app.do(t, http.MethodPatch, fmt.Sprintf("/api/users/%d", target.ID), adminC,
		map[string]any{"role": "controller"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d body=%s", w.Code, w.Body.String())
	}
	u := decodeBody[models.User](t, w)
	if u.Role != models.RoleController {
		t.Errorf("role = %s", u.Role)
	}

	if w := app.do(t, http.MethodPatch, fmt.Sprintf("/api/users/%d", target.ID), adminC,
		map[string]any{"role": "SUPERUSER"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad role = %d", w.Code)
	}
	if w := app.do(t, http.MethodPatch, fmt.Sprintf("/api/users/%d", admin.ID), adminC,
		map[string]any{"active": false}); w.Code != http.StatusBadRequest {
		t.Errorf("self-deactivate = %d", w.Code)
	}

	w = app.do(t, http.MethodGet, "/api/users?role=CONTROLLER", adminC, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	list := decodeBody[struct {
		Items []models.User `json:"items"`
		Total int           `json:"total"`
	}](t, w)
	if list.Total != 1 || list.Items[0].ID != target.ID {
		t.Errorf("filtered list = %+v", list)
	}
}
