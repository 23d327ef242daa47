package main

import (
	"net/http"

	"github.com/univer-labs/plugins-api/internal/platform/httpserver"
)

func (api *pluginsAPI) handleListDropdownSources(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"sources": api.dropdown.Sources(),
	})
}

func (api *pluginsAPI) handleGetDropdownData(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	records, err := api.dropdown.Records(source)
	if err != nil {
		api.writeStoreError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"source": source,
		"data":   records,
	})
}

// handleSearchDropdownData echoes the query back; an absent q is null.
func (api *pluginsAPI) handleSearchDropdownData(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	params := r.URL.Query()

	var query *string
	if values, ok := params["q"]; ok && len(values) > 0 {
		query = &values[0]
	}
	q := ""
	if query != nil {
		q = *query
	}

	records, err := api.dropdown.Search(source, q, params.Get("field"))
	if err != nil {
		api.writeStoreError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"source": source,
		"query":  query,
		"data":   records,
	})
}
