package handler

import (
	"net/http"

	"github.com/AlfredDev/conductor-gateway/modelmap"
)

// Models handles GET /v1/models.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"object":        "list",
		"data":          h.modelMap.Names(),
		"default_model": modelmap.DefaultModel,
	})
}
