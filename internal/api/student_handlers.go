package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ferrovax/gatehouse/internal/middleware"
	"github.com/ferrovax/gatehouse/internal/registry"
	"github.com/ferrovax/gatehouse/internal/validate"
)

// StudentStore is the registry surface the admin CRUD handlers operate on.
type StudentStore interface {
	List(ctx context.Context) ([]registry.Entry, error)
	Insert(ctx context.Context, entry *registry.Entry) error
	Update(ctx context.Context, entry *registry.Entry) error
	Delete(ctx context.Context, id string) error
}

// StudentHandlers serves the admin registry CRUD under /api/students.
type StudentHandlers struct {
	store StudentStore
}

// NewStudentHandlers creates student handlers.
func NewStudentHandlers(store StudentStore) *StudentHandlers {
	return &StudentHandlers{store: store}
}

// studentRequest is the create/update payload.
type studentRequest struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
	Course     string `json:"course"`
	Email      string `json:"email"`
}

// validate normalizes the payload in place and returns a message on the
// first invalid field.
func (req *studentRequest) validate() string {
	var err error
	if req.ExternalID, err = validate.ExternalID(req.ExternalID); err != nil {
		return err.Error()
	}
	if req.Name, err = validate.Name(req.Name); err != nil {
		return err.Error()
	}
	if req.Course, err = validate.Course(req.Course); err != nil {
		return err.Error()
	}
	if req.Email, err = validate.Email(req.Email); err != nil {
		return err.Error()
	}
	return ""
}

// Collection handles GET and POST on /api/students.
func (h *StudentHandlers) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	}
}

// Item handles GET, PUT, and DELETE on /api/students/{id}.
func (h *StudentHandlers) Item(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/students/")
	if id == "" || strings.Contains(id, "/") {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid student ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	}
}

func (h *StudentHandlers) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.List(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *StudentHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, msg)
		return
	}

	entry := registry.Entry{
		ID:         uuid.NewString(),
		ExternalID: req.ExternalID,
		Name:       req.Name,
		Course:     req.Course,
		Email:      req.Email,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.store.Insert(r.Context(), &entry); err != nil {
		if errors.Is(err, registry.ErrDuplicateExternalID) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeDuplicateCredential)
			WriteError(w, ctx, http.StatusConflict, ErrCodeDuplicateCredential, "External ID already registered")
			return
		}
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *StudentHandlers) get(w http.ResponseWriter, r *http.Request, id string) {
	entry, err := h.find(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if entry == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Student not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *StudentHandlers) update(w http.ResponseWriter, r *http.Request, id string) {
	var req studentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, msg)
		return
	}

	existing, err := h.find(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if existing == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Student not found")
		return
	}

	entry := registry.Entry{
		ID:         id,
		ExternalID: req.ExternalID,
		Name:       req.Name,
		Course:     req.Course,
		Email:      req.Email,
		CreatedAt:  existing.CreatedAt,
	}
	if err := h.store.Update(r.Context(), &entry); err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Student not found")
		case errors.Is(err, registry.ErrDuplicateExternalID):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeDuplicateCredential)
			WriteError(w, ctx, http.StatusConflict, ErrCodeDuplicateCredential, "External ID already registered")
		default:
			h.writeStoreError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *StudentHandlers) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Student not found")
			return
		}
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StudentHandlers) find(ctx context.Context, id string) (*registry.Entry, error) {
	entries, err := h.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, nil
}

func (h *StudentHandlers) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "student store operation failed", "error", err)
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
	WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
}
