package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ferrovax/gatehouse/internal/registry"
)

func newStudentFixture(t *testing.T) (*StudentHandlers, *registry.InMemoryRepository) {
	t.Helper()
	repo := registry.NewInMemoryRepository()
	return NewStudentHandlers(repo), repo
}

func seedStudent(t *testing.T, repo *registry.InMemoryRepository, extID, name string) registry.Entry {
	t.Helper()
	e := &registry.Entry{ExternalID: extID, Name: name, Course: "CS"}
	if err := repo.Insert(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	return *e
}

func studentBody(t *testing.T, extID, name string) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(studentRequest{ExternalID: extID, Name: name, Course: "CS", Email: "x@example.edu"})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(b)
}

func TestStudentCreate(t *testing.T) {
	h, repo := newStudentFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/students", studentBody(t, "STU-1", "Ada"))
	rr := httptest.NewRecorder()
	h.Collection(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var created registry.Entry
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Error("created entry has empty ID")
	}
	if created.ExternalID != "STU-1" || created.Name != "Ada" {
		t.Errorf("created = %+v", created)
	}
	if got, _ := repo.Lookup(context.Background(), "STU-1"); got == nil {
		t.Error("created student not in store")
	}
}

func TestStudentCreateValidation(t *testing.T) {
	h, _ := newStudentFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{nope"},
		{"missing external id", `{"name":"Ada"}`},
		{"missing name", `{"externalId":"STU-1"}`},
		{"whitespace only", `{"externalId":"  ","name":"Ada"}`},
		{"external id with spaces", `{"externalId":"STU 1","name":"Ada"}`},
		{"bad email", `{"externalId":"STU-1","name":"Ada","email":"not-an-email"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/students", bytes.NewReader([]byte(tt.body)))
			rr := httptest.NewRecorder()
			h.Collection(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestStudentCreateDuplicate(t *testing.T) {
	h, repo := newStudentFixture(t)
	seedStudent(t, repo, "STU-1", "Ada")

	req := httptest.NewRequest(http.MethodPost, "/api/students", studentBody(t, "STU-1", "Impostor"))
	rr := httptest.NewRecorder()
	h.Collection(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	resp := decodeError(t, rr.Body.Bytes())
	if resp.Error.Code != ErrCodeDuplicateCredential {
		t.Errorf("error code = %q, want %q", resp.Error.Code, ErrCodeDuplicateCredential)
	}
}

func TestStudentList(t *testing.T) {
	h, repo := newStudentFixture(t)
	seedStudent(t, repo, "STU-2", "Grace")
	seedStudent(t, repo, "STU-1", "Ada")

	req := httptest.NewRequest(http.MethodGet, "/api/students", nil)
	rr := httptest.NewRecorder()
	h.Collection(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var entries []registry.Entry
	if err := json.Unmarshal(rr.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Name != "Ada" {
		t.Errorf("entries = %+v, want Ada first", entries)
	}
}

func TestStudentGet(t *testing.T) {
	h, repo := newStudentFixture(t)
	e := seedStudent(t, repo, "STU-1", "Ada")

	req := httptest.NewRequest(http.MethodGet, "/api/students/"+e.ID, nil)
	rr := httptest.NewRecorder()
	h.Item(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var got registry.Entry
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != e.ID || got.Name != "Ada" {
		t.Errorf("got = %+v", got)
	}
}

func TestStudentGetNotFound(t *testing.T) {
	h, _ := newStudentFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/students/no-such-id", nil)
	rr := httptest.NewRecorder()
	h.Item(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	resp := decodeError(t, rr.Body.Bytes())
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("error code = %q, want %q", resp.Error.Code, ErrCodeNotFound)
	}
}

func TestStudentItemRejectsNestedPath(t *testing.T) {
	h, _ := newStudentFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/students/a/b", nil)
	rr := httptest.NewRecorder()
	h.Item(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestStudentUpdate(t *testing.T) {
	h, repo := newStudentFixture(t)
	e := seedStudent(t, repo, "STU-1", "Ada")

	req := httptest.NewRequest(http.MethodPut, "/api/students/"+e.ID, studentBody(t, "STU-1-NEW", "Ada L."))
	rr := httptest.NewRecorder()
	h.Item(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var got registry.Entry
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ExternalID != "STU-1-NEW" || got.Name != "Ada L." {
		t.Errorf("updated = %+v", got)
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v -> %v", e.CreatedAt, got.CreatedAt)
	}
	if old, _ := repo.Lookup(context.Background(), "STU-1"); old != nil {
		t.Error("old external ID still resolves")
	}
}

func TestStudentUpdateConflicts(t *testing.T) {
	h, repo := newStudentFixture(t)
	seedStudent(t, repo, "STU-1", "Ada")
	b := seedStudent(t, repo, "STU-2", "Grace")

	// Try to steal Ada's external ID.
	req := httptest.NewRequest(http.MethodPut, "/api/students/"+b.ID, studentBody(t, "STU-1", "Grace"))
	rr := httptest.NewRecorder()
	h.Item(rr, req)
	if rr.Code != http.StatusConflict {
		t.Errorf("steal status = %d, want 409", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/students/no-such-id", studentBody(t, "STU-9", "Ghost"))
	rr = httptest.NewRecorder()
	h.Item(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rr.Code)
	}
}

func TestStudentDelete(t *testing.T) {
	h, repo := newStudentFixture(t)
	e := seedStudent(t, repo, "STU-1", "Ada")

	req := httptest.NewRequest(http.MethodDelete, "/api/students/"+e.ID, nil)
	rr := httptest.NewRecorder()
	h.Item(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if got, _ := repo.Lookup(context.Background(), "STU-1"); got != nil {
		t.Error("deleted student still resolves")
	}

	// Deleting again is a 404.
	rr = httptest.NewRecorder()
	h.Item(rr, httptest.NewRequest(http.MethodDelete, "/api/students/"+e.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}
