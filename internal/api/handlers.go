package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nvandessel/tradernet/internal/export"
	"github.com/nvandessel/tradernet/internal/network"
	"github.com/nvandessel/tradernet/internal/session"
	"github.com/nvandessel/tradernet/internal/store"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error string `json:"error"`
}

// CreateRunResponse is returned by POST /v1/runs.
type CreateRunResponse struct {
	Run    store.RunSummary `json:"run"`
	Prices []float64        `json:"prices"`
}

// RunResponse is returned by GET /v1/runs/:id.
type RunResponse struct {
	Run    store.RunSummary `json:"run"`
	Agents []store.Agent    `json:"agents"`
	Steps  []store.Step     `json:"steps"`
}

func abortError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

// storeError maps store errors onto HTTP statuses.
func storeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrRunNotFound) {
		abortError(c, http.StatusNotFound, err)
		return
	}
	abortError(c, http.StatusInternalServerError, err)
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.store.ListRuns(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) createRun(c *gin.Context) {
	var o session.Overrides
	if err := c.ShouldBindJSON(&o); err != nil && !errors.Is(err, io.EOF) {
		abortError(c, http.StatusBadRequest, err)
		return
	}

	cfg, err := o.Apply(s.base)
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}

	run, err := session.RunAndSave(c.Request.Context(), cfg, s.store, session.Options{Logger: s.logger})
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}

	prices := make([]float64, len(run.Steps))
	for i, st := range run.Steps {
		prices[i] = st.Price
	}
	c.Header("Location", "/v1/runs/"+run.ID)
	c.JSON(http.StatusCreated, CreateRunResponse{Run: run.Summary(), Prices: prices})
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, RunResponse{Run: run.Summary(), Agents: run.Agents, Steps: run.Steps})
}

func (s *Server) deleteRun(c *gin.Context) {
	if err := s.store.DeleteRun(c.Request.Context(), c.Param("id")); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// getSteps exports the steps of a run; ?format=jsonl (default) or arrow.
func (s *Server) getSteps(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", string(export.FormatJSONL)))
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}

	steps, err := s.store.GetSteps(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}

	contentType := "application/jsonl"
	if format == export.FormatArrow {
		contentType = "application/vnd.apache.arrow.file"
	}
	c.Status(http.StatusOK)
	c.Header("Content-Type", contentType)
	if err := export.Write(c.Writer, format, steps); err != nil {
		s.logger.Warn("step export failed", "run_id", c.Param("id"), "error", err)
	}
}

// getGraph renders the trust network of a run as Graphviz DOT.
func (s *Server) getGraph(c *gin.Context) {
	run, err := s.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}
	g, err := session.RunGraph(run)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "text/vnd.graphviz; charset=utf-8", []byte(network.RenderGraphDOT(g)))
}

// getInfluence ranks a run's traders; ?top=N limits the result (default 10).
func (s *Server) getInfluence(c *gin.Context) {
	top, err := strconv.Atoi(c.DefaultQuery("top", "10"))
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}

	run, err := s.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}
	g, err := session.RunGraph(run)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}

	scores := network.ComputeInfluence(g, network.DefaultInfluenceConfig())
	c.JSON(http.StatusOK, gin.H{"traders": network.TopInfluencers(scores, top)})
}
