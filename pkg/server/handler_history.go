package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/momentseek/pkg/model"
	"github.com/m-mizutani/momentseek/pkg/usecase/history"
)

type historyFilter struct {
	Sort     string `form:"sort"`
	Order    string `form:"order"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Search   string `form:"search"`
}

type showResponse struct {
	Entry    *model.HistoryEntry `json:"entry"`
	Best     *model.Segment      `json:"best,omitempty"`
	Timeline *model.Timeline     `json:"timeline"`
}

// listHistory handles GET /api/v1/history
func (s *Server) listHistory(c *gin.Context) {
	var filter historyFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, "Invalid query parameters.", err)
		return
	}

	page, err := s.ledger.Query(c.Request.Context(), ownerOf(c), model.HistoryQuery{
		SortField:     model.SortField(filter.Sort),
		SortDirection: model.SortDirection(filter.Order),
		Page:          filter.Page,
		PageSize:      filter.PageSize,
		SearchText:    filter.Search,
	})
	if err != nil {
		fail(c, err)
		return
	}

	success(c, page)
}

// showHistory handles GET /api/v1/history/:id
func (s *Server) showHistory(c *gin.Context) {
	var duration float64
	if d := c.Query("duration"); d != "" {
		v, err := strconv.ParseFloat(d, 64)
		if err != nil {
			badRequest(c, "Invalid video duration.", err)
			return
		}
		duration = v
	}

	entry, err := s.ledger.Get(c.Request.Context(), ownerOf(c), model.HistoryID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}

	resp := showResponse{
		Entry:    entry,
		Timeline: s.query.Timeline(entry.Results, duration),
	}
	if best, ok := history.BestOf(entry); ok {
		resp.Best = &best
	}
	success(c, resp)
}
