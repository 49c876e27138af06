package handlers

import (
	"net/http"
	"strconv"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/principal"
)

type statsResponse struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"by_status"`
	ThisMonth int            `json:"this_month"`
}

func (h *Handler) AdminListAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, _ := principal.FromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	appts, err := h.svc.ListAll(r.Context(), p, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toItems(appts))
}

func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, _ := principal.FromContext(r.Context())

	stats, err := h.svc.Stats(r.Context(), p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	byStatus := make(map[string]int, len(stats.ByStatus))
	for st, n := range stats.ByStatus {
		byStatus[string(st)] = n
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Total:     stats.Total,
		ByStatus:  byStatus,
		ThisMonth: stats.ThisMonth,
	})
}

func (h *Handler) AdminCompleteAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, _ := principal.FromContext(r.Context())
	id, ok := decodeAppointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.MarkCompleted(r.Context(), p, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toItem(appt))
}
