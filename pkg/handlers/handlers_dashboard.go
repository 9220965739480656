package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/arnavshah/ward-census-api/pkg/dashboard"
	"github.com/arnavshah/ward-census-api/pkg/export"
	"github.com/arnavshah/ward-census-api/pkg/models"
	"github.com/gin-gonic/gin"
)

// dashboardQuery reads ward, start and end. A missing or "all" ward selects
// every accessible ward; start defaults to today and end to start.
func (h *Handler) dashboardQuery(c *gin.Context) dashboard.Query {
	q := dashboard.Query{
		User:      currentUser(c),
		Selection: models.AllWards(),
		Start:     c.Query("start"),
		End:       c.Query("end"),
	}
	if ward := c.Query("ward"); ward != "" && ward != "all" {
		q.Selection = models.SingleWard(ward)
	}
	if q.Start == "" {
		q.Start = h.today()
	}
	if q.End == "" {
		q.End = q.Start
	}
	return q
}

// viewKey scopes request supersession to one user's view
func viewKey(user models.UserContext, view string) string {
	return user.Username + ":" + view
}

// ListWards returns the wards the caller can see
func (h *Handler) ListWards(c *gin.Context) {
	wards, err := h.Service.Wards(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if wards == nil {
		wards = []models.Ward{}
	}
	c.JSON(http.StatusOK, gin.H{"wards": wards})
}

// Summary returns the per-ward table with the grand total row
func (h *Handler) Summary(c *gin.Context) {
	q := h.dashboardQuery(c)
	summary, err := dashboard.Track(h.Service.Tracker, viewKey(q.User, "summary"), func() (*models.WardSetSummary, error) {
		return h.Service.Summary(c.Request.Context(), q)
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ExportSummary downloads the summary table as csv or xlsx
func (h *Handler) ExportSummary(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	q := h.dashboardQuery(c)
	summary, err := h.Service.Summary(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, summary, format); err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(q.Start, q.End, format)))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// Trend returns one zero-filled point per date
func (h *Handler) Trend(c *gin.Context) {
	q := h.dashboardQuery(c)
	series, err := dashboard.Track(h.Service.Tracker, viewKey(q.User, "trend"), func() (*models.TrendSeries, error) {
		return h.Service.Trend(c.Request.Context(), q)
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// Beds returns the bed pie slices
func (h *Handler) Beds(c *gin.Context) {
	q := h.dashboardQuery(c)
	slices, err := dashboard.Track(h.Service.Tracker, viewKey(q.User, "beds"), func() ([]models.BedSlice, error) {
		return h.Service.Beds(c.Request.Context(), q)
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"start": q.Start, "end": q.End, "slices": slices})
}
