package server

import (
	"fmt"
	"net/http"

	"github.com/dchest/uniuri"
	"github.com/gin-gonic/gin"

	"github.com/kraktus/cargo-bisect-rustc/pkg/bisect"
	"github.com/kraktus/cargo-bisect-rustc/pkg/toolchain"
)

type pendingToolchainResponse struct {
	VerdictID string `json:"verdictId"`

	Toolchain string `json:"toolchain"`

	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

type verdictRequest struct {
	Verdict string `json:"verdict" binding:"required"`
}

func (s *Server) router() *gin.Engine {
	router := gin.Default()

	router.GET("/toolchain", s.getToolchain)
	router.POST("/verdict/:verdictId", s.postVerdict)
	router.GET("/report", s.getReport)

	return router
}

// Start brings up the HTTP API in the background.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := s.router()

	s.log.Infof("Verdict server listening on localhost:%d", s.port)
	go router.Run(fmt.Sprintf("localhost:%d", s.port))
	return nil
}

// Decide publishes the run for remote judgement and blocks until a verdict
// arrives. It is the bisect.Decider used with --prompt-port.
func (s *Server) Decide(t toolchain.Toolchain, res *toolchain.ProcessResult) (bisect.Outcome, error) {
	id := uniuri.New()
	result := make(chan bisect.Outcome, 1)

	s.mu.Lock()
	s.verdicts[id] = result
	s.mu.Unlock()

	s.pending <- pendingVerdict{
		payload: pendingToolchainResponse{
			VerdictID: id,
			Toolchain: t.String(),
			Success:   res.Success,
			Stdout:    res.Stdout,
			Stderr:    res.Stderr,
		},
		result: result,
	}

	outcome := <-result

	s.mu.Lock()
	delete(s.verdicts, id)
	s.mu.Unlock()

	return outcome, nil
}

// PublishReport stores the final regression report for retrieval over HTTP.
func (s *Server) PublishReport(report string) {
	s.mu.Lock()
	s.report = report
	s.mu.Unlock()
}

func (s *Server) getToolchain(c *gin.Context) {
	select {
	case pending := <-s.pending:
		c.JSON(http.StatusOK, pending.payload)
	case <-c.Request.Context().Done():
		c.AbortWithStatus(http.StatusRequestTimeout)
	}
}

func (s *Server) postVerdict(c *gin.Context) {
	var req verdictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	var outcome bisect.Outcome
	switch req.Verdict {
	case "baseline", "good":
		outcome = bisect.Baseline
	case "regressed", "bad":
		outcome = bisect.Regressed
	default:
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	id := c.Param("verdictId")
	s.mu.Lock()
	result, found := s.verdicts[id]
	s.mu.Unlock()

	if !found {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	result <- outcome
	c.Status(http.StatusOK)
}

func (s *Server) getReport(c *gin.Context) {
	s.mu.Lock()
	report := s.report
	s.mu.Unlock()

	if report == "" {
		c.Status(http.StatusNoContent)
		return
	}
	c.String(http.StatusOK, report)
}
