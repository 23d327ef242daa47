package main

import (
	"net/http"

	"github.com/univer-labs/plugins-api/internal/domain"
	"github.com/univer-labs/plugins-api/internal/platform/httpserver"
	"github.com/univer-labs/plugins-api/internal/service/templates"
)

func (api *pluginsAPI) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := api.store.List(r.Context(), templates.Filter{
		Category: q.Get("category"),
		Query:    q.Get("q"),
	})
	if err != nil {
		api.writeStoreError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, items)
}

func (api *pluginsAPI) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := api.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeStoreError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, tpl)
}

func (api *pluginsAPI) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	in, ok := api.readTemplateInput(w, r)
	if !ok {
		return
	}
	tpl, err := api.store.Create(r.Context(), in)
	if err != nil {
		api.writeStoreError(w, r, err)
		return
	}
	api.recordChange(r, "template.create", tpl)
	httpserver.WriteJSON(w, http.StatusOK, tpl)
}

func (api *pluginsAPI) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	in, ok := api.readTemplateInput(w, r)
	if !ok {
		return
	}
	tpl, err := api.store.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		api.writeStoreError(w, r, err)
		return
	}
	api.recordChange(r, "template.update", tpl)
	httpserver.WriteJSON(w, http.StatusOK, tpl)
}

func (api *pluginsAPI) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := api.store.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeStoreError(w, r, err)
		return
	}
	api.audit.Record(r, "template.delete", "template", id, map[string]any{"template_id": id})
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (api *pluginsAPI) recordChange(r *http.Request, action string, tpl domain.Template) {
	api.audit.Record(r, action, "template", tpl.ID, map[string]any{
		"template_id": tpl.ID,
		"name":        tpl.Name,
		"category":    tpl.Category,
	})
}
