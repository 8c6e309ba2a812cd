// admin.go serves the dashboard and the overdue notice trigger.
package handlers

import "net/http"

// GetDashboard serves GET /api/v1/admin/dashboard.
func (h *APIHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	snap, err := h.dashboard.GetDashboardData(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, mapDashboard(snap))
}

// SendOverdueNotices serves POST /api/v1/admin/notices/overdue. Delivery
// failures are part of the summary, so a partly failed batch is still 200.
func (h *APIHandler) SendOverdueNotices(w http.ResponseWriter, r *http.Request) {
	summary, err := h.notices.SendOverdueNotices(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "overdue_notices", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
