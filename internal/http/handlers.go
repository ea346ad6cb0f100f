package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/extraction"
	"github.com/fyrsmithlabs/taskd/internal/notes"
	"github.com/fyrsmithlabs/taskd/internal/tasks"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleExtract previews an extraction without persisting anything.
func (s *Server) handleExtract(c echo.Context) error {
	var req ExtractRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid extract request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.extractor.Extract(c.Request().Context(), extraction.Request{
		SourceText:           req.Text,
		SystemPromptTemplate: req.SystemPrompt,
	})
	if err != nil {
		return s.fail(c, "extract", err)
	}
	return c.JSON(http.StatusOK, res)
}

// handleExtractApply extracts and persists, or persists a previewed result.
func (s *Server) handleExtractApply(c echo.Context) error {
	var req ApplyRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid apply request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	res := req.Result
	if res == nil {
		var err error
		res, err = s.extractor.Extract(ctx, extraction.Request{
			SourceText:           req.Text,
			SystemPromptTemplate: req.SystemPrompt,
		})
		if err != nil {
			return s.fail(c, "extract", err)
		}
	}

	applied, err := s.extractor.Apply(ctx, res, extraction.Source{Origin: tasks.OriginManual})
	if err != nil {
		return s.fail(c, "apply", err)
	}
	return c.JSON(http.StatusOK, applied)
}

// handleProcessNote runs extraction over a saved note.
func (s *Server) handleProcessNote(c echo.Context) error {
	var req NoteRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid note request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.ID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id field is required")
	}

	res, err := s.extractor.ProcessNote(c.Request().Context(), notes.Note{
		ID:    req.ID,
		Title: req.Title,
		Body:  req.Body,
	})
	if err != nil {
		return s.fail(c, "process_note", err)
	}
	return c.JSON(http.StatusOK, res)
}

// handleSaveNote stores a note for the next sweep.
func (s *Server) handleSaveNote(c echo.Context) error {
	var req NoteRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid note request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.ID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id field is required")
	}

	n := notes.Note{ID: req.ID, Title: req.Title, Body: req.Body, UpdatedAt: time.Now().UTC()}
	if err := s.notes.Put(c.Request().Context(), n); err != nil {
		return s.fail(c, "save_note", err)
	}
	return c.JSON(http.StatusAccepted, NoteSavedResponse{ID: n.ID, Status: "queued"})
}

func (s *Server) handleListTasks(c echo.Context) error {
	list, err := s.tasks.ListTasks(c.Request().Context())
	if err != nil {
		return s.fail(c, "list_tasks", err)
	}
	if list == nil {
		list = []*tasks.Task{}
	}
	return c.JSON(http.StatusOK, TasksResponse{Tasks: list})
}

func (s *Server) handleListPending(c echo.Context) error {
	list, err := s.queue.List(c.Request().Context())
	if err != nil {
		return s.fail(c, "list_pending", err)
	}
	if list == nil {
		list = []*tasks.PendingTask{}
	}
	return c.JSON(http.StatusOK, PendingResponse{Pending: list})
}

func (s *Server) handleApprove(c echo.Context) error {
	t, err := s.queue.Approve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, "approve", err)
	}
	return c.JSON(http.StatusOK, ApproveResponse{Task: t})
}

func (s *Server) handleReject(c echo.Context) error {
	id := c.Param("id")
	if err := s.queue.Reject(c.Request().Context(), id); err != nil {
		return s.fail(c, "reject", err)
	}
	return c.JSON(http.StatusOK, RejectResponse{ID: id, Status: "rejected"})
}

func (s *Server) handleBulkApprove(c echo.Context) error {
	ids, err := s.bindIDs(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newBulkResponse(s.queue.BulkApprove(c.Request().Context(), ids)))
}

func (s *Server) handleBulkReject(c echo.Context) error {
	ids, err := s.bindIDs(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newBulkResponse(s.queue.BulkReject(c.Request().Context(), ids)))
}

func (s *Server) bindIDs(c echo.Context) ([]string, error) {
	var req BulkRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid bulk request", zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.IDs) == 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "ids field is required")
	}
	return req.IDs, nil
}

// handleTestProvider sends a trivial prompt to the configured provider.
func (s *Server) handleTestProvider(c echo.Context) error {
	client := s.extractor.Client()
	if err := client.TestConnection(c.Request().Context()); err != nil {
		return s.fail(c, "test_provider", err)
	}
	return c.JSON(http.StatusOK, ProviderTestResponse{Status: "ok", Kind: client.Kind().String()})
}
