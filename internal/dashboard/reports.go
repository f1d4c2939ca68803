package dashboard

import (
	"bytes"
	"net/http"
	"time"

	"github.com/dtc/client-desk/internal/engine"
	"github.com/dtc/client-desk/internal/export"
	"github.com/dtc/client-desk/internal/model"
)

// StatsResponse is the dashboard snapshot plus the collections that could
// not be loaded for it.
type StatsResponse struct {
	model.DashboardStats
	Degraded []string  `json:"degraded,omitempty"`
	LoadedAt time.Time `json:"loaded_at"`
}

// GetStats handles GET /api/v1/dashboard/stats
// Figures cover only the clients the caller may see. Rates and averages
// are rounded to engine.RateScale.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	snap, err := s.visibleSnapshot(r.Context(), sess)
	if err != nil {
		fail(w, r, err, "failed to load data")
		return
	}
	stats, err := snap.Stats(s.now())
	if err != nil {
		fail(w, r, err, "failed to compute statistics")
		return
	}
	writeJSON(w, r, http.StatusOK, StatsResponse{
		DashboardStats: engine.RoundStats(stats),
		Degraded:       snap.Degraded,
		LoadedAt:       snap.LoadedAt,
	})
}

// GetNotsProgress handles GET /api/v1/dashboard/nots-progress
func (s *Service) GetNotsProgress(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	snap, err := s.visibleSnapshot(r.Context(), sess)
	if err != nil {
		fail(w, r, err, "failed to load data")
		return
	}
	writeJSON(w, r, http.StatusOK, engine.RoundProgress(engine.ClientNotsProgress(snap.Clients)))
}

// GetAnalytics handles GET /api/v1/analytics?range=7days|30days|3months|thisMonth
// The range defaults to 30days.
func (s *Service) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	window, err := engine.WindowFor(r.URL.Query().Get("range"), s.now())
	if err != nil {
		fail(w, r, err, "")
		return
	}
	snap, err := s.visibleSnapshot(r.Context(), sess)
	if err != nil {
		fail(w, r, err, "failed to load data")
		return
	}
	writeJSON(w, r, http.StatusOK, engine.SummarizeAnalytics(
		snap.Clients, snap.Transactions, snap.DailyCommissions, window,
	).Rounded())
}

// ExportClients handles GET /api/v1/export/clients.xlsx
func (s *Service) ExportClients(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	snap, err := s.visibleSnapshot(r.Context(), sess)
	if err != nil {
		fail(w, r, err, "failed to load data")
		return
	}
	var buf bytes.Buffer
	if err := export.Clients(&buf, snap.Clients); err != nil {
		fail(w, r, err, "failed to build workbook")
		return
	}
	writeWorkbook(w, "clients", s.now(), buf.Bytes())
}

// ExportTransactions handles GET /api/v1/export/transactions.xlsx
func (s *Service) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	sess, err := session(r)
	if err != nil {
		fail(w, r, err, "")
		return
	}
	snap, err := s.visibleSnapshot(r.Context(), sess)
	if err != nil {
		fail(w, r, err, "failed to load data")
		return
	}
	names := make(map[string]string, len(snap.Clients))
	for _, c := range snap.Clients {
		names[c.ID] = c.Name
	}
	var buf bytes.Buffer
	if err := export.Transactions(&buf, snap.Transactions, names); err != nil {
		fail(w, r, err, "failed to build workbook")
		return
	}
	writeWorkbook(w, "transactions", s.now(), buf.Bytes())
}

// writeWorkbook sends data as an attachment named {kind}-{date}.xlsx.
// The workbook is built in memory first so a failure can still be
// answered with a JSON error.
func writeWorkbook(w http.ResponseWriter, kind string, now time.Time, data []byte) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+kind+"-"+now.Format(model.DateLayout)+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
