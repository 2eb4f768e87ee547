package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/leofalp/railgraph/core/approval"
	"github.com/leofalp/railgraph/core/graph"
	"github.com/leofalp/railgraph/core/humanloop"
	"github.com/leofalp/railgraph/patterns/run"
	"github.com/leofalp/railgraph/providers/store"
)

// StartRunRequest is the body of POST /runs.
type StartRunRequest struct {
	Graph    graph.Graph `json:"graph"`
	Question string      `json:"question" binding:"required"`
}

// HumanResponseRequest is the body of POST /runs/:id/human/:ticket.
type HumanResponseRequest struct {
	OK     bool   `json:"ok"`
	Output any    `json:"output"`
	Error  string `json:"error"`
}

// DecisionRequest is the body of POST /approvals/:id/decision.
type DecisionRequest struct {
	Decision approval.Decision `json:"decision" binding:"required"`
}

func (server *Server) startRun(c *gin.Context) {
	var request StartRunRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	runID, err := server.engine.Start(c.Request.Context(), request.Graph, request.Question)
	if err != nil {
		var validationError *graph.ValidationError
		if errors.As(err, &validationError) {
			problems := make([]string, 0, len(validationError.Problems))
			for _, problem := range validationError.Problems {
				problems = append(problems, problem.Error())
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid graph", "problems": problems})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"runId": runID})
}

func (server *Server) listRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": server.engine.Runs()})
}

// getRun answers from the engine for runs it knows and from the store for
// the rest.
func (server *Server) getRun(c *gin.Context) {
	runID := c.Param("id")
	view, err := server.engine.Status(runID)
	if err == nil {
		c.JSON(http.StatusOK, view)
		return
	}
	if !errors.Is(err, run.ErrRunNotFound) || server.store == nil {
		writeError(c, err)
		return
	}
	record, err := server.store.LoadRun(c.Request.Context(), runID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (server *Server) lifecycle(action func(runID string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("id")
		if err := action(runID); err != nil {
			writeError(c, err)
			return
		}
		view, err := server.engine.Status(runID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func (server *Server) getHuman(c *gin.Context) {
	queue, err := server.engine.HumanQueue(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, queue.Snapshot())
}

func (server *Server) submitHuman(c *gin.Context) {
	queue, err := server.engine.HumanQueue(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var request HumanResponseRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	response := humanloop.Response{OK: request.OK, Output: request.Output, Error: request.Error}
	if err := queue.Submit(c.Param("ticket"), response); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, queue.Snapshot())
}

func (server *Server) suspendHuman(c *gin.Context) {
	queue, err := server.engine.HumanQueue(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := queue.Suspend(c.Param("ticket")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, queue.Snapshot())
}

func (server *Server) listApprovals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"requests": server.engine.Approvals().Snapshot()})
}

// seedApprovals accepts a single seed or a list of seeds.
func (server *Server) seedApprovals(c *gin.Context) {
	var seeds []approval.Seed
	if err := c.ShouldBindBodyWith(&seeds, binding.JSON); err != nil {
		var single approval.Seed
		if errSingle := c.ShouldBindBodyWith(&single, binding.JSON); errSingle != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", errSingle)})
			return
		}
		seeds = []approval.Seed{single}
	}
	c.JSON(http.StatusOK, gin.H{"requests": server.engine.Approvals().Seed(seeds...)})
}

func (server *Server) decideApproval(c *gin.Context) {
	var request DecisionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	updated, err := server.engine.Approvals().Decide(c.Param("id"), request.Decision)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (server *Server) listHistory(c *gin.Context) {
	if server.store == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []string{}})
		return
	}
	runIDs, err := server.store.ListRuns(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runIDs})
}

func (server *Server) getBatch(c *gin.Context) {
	if server.batch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch runner is not enabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"schedules": server.batch.Schedules(),
		"history":   server.batch.History(),
	})
}

// writeError maps domain errors onto status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, run.ErrRunNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, humanloop.ErrTicketNotFound),
		errors.Is(err, approval.ErrRequestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, run.ErrInvalidTransition),
		errors.Is(err, humanloop.ErrTicketNotActive):
		status = http.StatusConflict
	case errors.Is(err, approval.ErrUnknownDecision):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
