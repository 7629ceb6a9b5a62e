package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/remote-lead-crawler/internal/checkpoint"
	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/extract"
)

const (
	defaultLeadLimit = 100
	maxLeadLimit     = 1000
)

type leadDTO struct {
	Index        int       `json:"index"`
	Source       string    `json:"source"`
	Ref          string    `json:"ref"`
	Term         string    `json:"term"`
	Title        string    `json:"title"`
	Company      string    `json:"company"`
	Location     string    `json:"location"`
	Description  string    `json:"description"`
	URL          string    `json:"url,omitempty"`
	Emails       []string  `json:"emails"`
	DiscoveredAt time.Time `json:"discovered_at,omitempty"`
}

type leadsResponse struct {
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
	Leads  []leadDTO `json:"leads"`
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	leads := s.run.GetLeads()
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="leads.csv"`)
		if err := checkpoint.Encode(w, leads, extract.DescriptionLimit); err != nil {
			s.logger.Error("write CSV failed", zap.Error(err))
		}
		return
	}

	limit, offset, err := parseLimitOffset(r, defaultLeadLimit, maxLeadLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := leadsResponse{Total: len(leads), Limit: limit, Offset: offset, Leads: []leadDTO{}}
	for i := offset; i < len(leads) && i < offset+limit; i++ {
		resp.Leads = append(resp.Leads, toLeadDTO(i, leads[i]))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getLead(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		s.writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	leads := s.run.GetLeads()
	if index >= len(leads) {
		s.writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	s.writeJSON(w, http.StatusOK, toLeadDTO(index, leads[index]))
}

func (s *Server) getStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.run.GetStats())
}

func (s *Server) getRun(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.run.Summary())
}

func toLeadDTO(index int, lead crawler.Lead) leadDTO {
	p := lead.Posting
	url := p.DetailURL
	if url == "" {
		url = p.ExternalRef
	}
	return leadDTO{
		Index:        index,
		Source:       p.SourceID,
		Ref:          p.ExternalRef,
		Term:         p.SearchLabel,
		Title:        p.Title,
		Company:      p.Company,
		Location:     p.Location,
		Description:  p.Description,
		URL:          url,
		Emails:       lead.Emails,
		DiscoveredAt: lead.DiscoveredAt,
	}
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
