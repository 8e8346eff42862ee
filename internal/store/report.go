package store

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"clinic-app-server/internal/models"
)

// prepareReport assigns the id and creation time of a new report.
func prepareReport(r *models.Report, now func() time.Time) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now().UTC()
	}
}

// sortReports orders reports newest first, keeping insertion order for ties.
func sortReports(reports []*models.Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
}
