// ABOUTME: On-demand lookup endpoints for invoices, employees, and absence requests
// ABOUTME: Serves TTL-cached Gripp data and flags stale fallbacks in the response meta
package web

import (
	"net/http"
	"time"
)

func (s *Server) handleInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, stale, err := s.ondemand.Invoices(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "gripp_unavailable", err.Error())
		return
	}
	respondOK(w, invoices, &Meta{Count: len(invoices), Stale: stale})
}

func (s *Server) handleEmployees(w http.ResponseWriter, r *http.Request) {
	employees, stale, err := s.ondemand.Employees(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "gripp_unavailable", err.Error())
		return
	}
	respondOK(w, employees, &Meta{Count: len(employees), Stale: stale})
}

func (s *Server) handleAbsenceRequests(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")

	// Default to the current month when no range is given.
	if from == "" || to == "" {
		now := time.Now()
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		from = first.Format("2006-01-02")
		to = first.AddDate(0, 1, -1).Format("2006-01-02")
	}

	requests, stale, err := s.ondemand.AbsenceRequests(r.Context(), from, to)
	if err != nil {
		respondError(w, http.StatusBadGateway, "gripp_unavailable", err.Error())
		return
	}
	respondOK(w, requests, &Meta{Count: len(requests), Stale: stale})
}
