package main

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/univer-labs/plugins-api/internal/apispec"
	"github.com/univer-labs/plugins-api/internal/catalog"
	"github.com/univer-labs/plugins-api/internal/platform/auditlog"
	"github.com/univer-labs/plugins-api/internal/platform/httpserver"
	"github.com/univer-labs/plugins-api/internal/platform/requestid"
	"github.com/univer-labs/plugins-api/internal/repo"
	"github.com/univer-labs/plugins-api/internal/service/templates"
)

const defaultMaxBodyBytes = 16 << 20

type pluginsAPI struct {
	logger       *slog.Logger
	store        *templates.Store
	dropdown     *catalog.Dropdown
	doc          *apispec.Document
	audit        *auditlog.Recorder
	maxBodyBytes int64
	now          func() time.Time
}

func newPluginsAPI(logger *slog.Logger, store *templates.Store, dropdown *catalog.Dropdown, doc *apispec.Document, audit *auditlog.Recorder, maxBodyBytes int64) *pluginsAPI {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &pluginsAPI{
		logger:       logger,
		store:        store,
		dropdown:     dropdown,
		doc:          doc,
		audit:        audit,
		maxBodyBytes: maxBodyBytes,
		now:          time.Now,
	}
}

func (api *pluginsAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", httpserver.Health(func() time.Time { return api.now() }))
	mux.HandleFunc("GET /openapi.json", api.handleOpenAPI)

	mux.HandleFunc("GET /dropdown/sources", api.handleListDropdownSources)
	mux.HandleFunc("GET /dropdown/{source}", api.handleGetDropdownData)
	mux.HandleFunc("GET /dropdown/{source}/search", api.handleSearchDropdownData)

	mux.HandleFunc("GET /templates", api.handleListTemplates)
	mux.HandleFunc("POST /templates", api.handleCreateTemplate)
	mux.HandleFunc("GET /templates/{id}", api.handleGetTemplate)
	mux.HandleFunc("PUT /templates/{id}", api.handleUpdateTemplate)
	mux.HandleFunc("DELETE /templates/{id}", api.handleDeleteTemplate)
}

func (api *pluginsAPI) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(api.doc.JSON())
}

// readTemplateInput reads and validates a create/update body, writing the
// error response itself when it fails.
func (api *pluginsAPI) readTemplateInput(w http.ResponseWriter, r *http.Request) (templates.Input, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, api.maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.writeErrorDetail(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds the configured limit")
			return templates.Input{}, false
		}
		api.writeError(w, r, http.StatusBadRequest, "invalid_body")
		return templates.Input{}, false
	}

	in, err := api.doc.DecodeTemplateInput(body)
	if err != nil {
		var verr *apispec.ValidationError
		switch {
		case errors.As(err, &verr):
			api.writeErrorDetail(w, r, http.StatusUnprocessableEntity, "validation_failed", verr.Error())
		default:
			api.writeErrorDetail(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		}
		return templates.Input{}, false
	}
	return templates.Input{Name: in.Name, Category: in.Category, Content: in.Content}, true
}

// writeStoreError maps store and catalog failures onto the error envelope.
func (api *pluginsAPI) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var storageErr *repo.StorageError
	switch {
	case errors.Is(err, repo.ErrNotFound):
		api.writeErrorDetail(w, r, http.StatusNotFound, "not_found", "Template not found")
	case errors.Is(err, repo.ErrConflict):
		api.writeErrorDetail(w, r, http.StatusConflict, "template_exists", "Template with same name and category already exists")
	case errors.Is(err, catalog.ErrUnknownSource):
		api.writeErrorDetail(w, r, http.StatusNotFound, "source_not_found", "Data source not found")
	case errors.Is(err, templates.ErrInvalidInput):
		api.writeErrorDetail(w, r, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	case errors.As(err, &storageErr):
		api.logger.ErrorContext(r.Context(), "template storage failed", "request_id", requestid.FromRequest(r), "op", storageErr.Op, "path", storageErr.Path, "error", storageErr.Err)
		api.writeError(w, r, http.StatusInternalServerError, "storage_error")
	default:
		api.logger.ErrorContext(r.Context(), "request failed", "request_id", requestid.FromRequest(r), "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func (api *pluginsAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeErrorDetail(w, r, status, code, "")
}

func (api *pluginsAPI) writeErrorDetail(w http.ResponseWriter, r *http.Request, status int, code string, detail string) {
	body := map[string]any{
		"error":      code,
		"request_id": requestid.FromRequest(r),
	}
	if detail != "" {
		body["detail"] = detail
	}
	httpserver.WriteJSON(w, status, body)
}
