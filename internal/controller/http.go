package controller

import (
	"net/http"

	"github.com/devrev/kvring/internal/httpserver"
	"github.com/gorilla/mux"
)

// RegisterRoutes adds the read-only cluster views to r
func (c *Controller) RegisterRoutes(r *mux.Router) {
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/ring", c.handleRing).Methods(http.MethodGet)
	v1.HandleFunc("/cluster", c.handleCluster).Methods(http.MethodGet)
	v1.HandleFunc("/operations/last", c.handleLastOperation).Methods(http.MethodGet)
}

func (c *Controller) handleRing(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, c.Ring())
}

func (c *Controller) handleCluster(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, c.GetCluster())
}

func (c *Controller) handleLastOperation(w http.ResponseWriter, r *http.Request) {
	op := c.LastOperation()
	if op == nil {
		httpserver.WriteJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "no membership operation recorded"})
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, op)
}
