// Package handlers exposes the control-plane HTTP surface over
// internal/engine/runtime: register a blueprint, run it, and resume an
// awaiting node. Grounded on the teacher's
// internal/infrastructure/http/handlers/run.go (a struct of injected
// application handlers, Bind+manual-validate+dto.ErrorResponse per method),
// generalized onto Flowcraft's single Runtime façade rather than the
// teacher's per-use-case command/query handler set.
package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/flowcraft/flowcraft/internal/domain/blueprint"
	"github.com/flowcraft/flowcraft/internal/domain/flowctx"
	"github.com/flowcraft/flowcraft/internal/domain/state"
	"github.com/flowcraft/flowcraft/internal/engine/runtime"
	"github.com/flowcraft/flowcraft/internal/infra/http/dto"
)

// Checkpointer is the narrow surface WorkflowHandler needs to persist a
// resumable execution snapshot after a run/resume call leaves it awaiting,
// and to drop that snapshot once it reaches a terminal status. Satisfied
// structurally by *postgres.CheckpointRepository; nil disables checkpoint
// persistence entirely.
type Checkpointer interface {
	Save(ctx context.Context, cp Checkpoint) error
	Delete(ctx context.Context, executionID string) error
}

// Checkpoint mirrors postgres.Checkpoint so this package has no import-time
// dependency on the Postgres adapter.
type Checkpoint struct {
	ExecutionID       string
	BlueprintID       string
	Status            string
	SerializedContext map[string]interface{}
	AwaitingNodeIDs   []string
}

// WorkflowHandler wires the HTTP layer to a Runtime and the blueprint
// registry it shares with that Runtime.
type WorkflowHandler struct {
	runtime     *runtime.Runtime
	blueprints  *BlueprintRegistry
	checkpoints Checkpointer
}

// NewWorkflowHandler constructs a WorkflowHandler. checkpoints may be nil.
func NewWorkflowHandler(rt *runtime.Runtime, blueprints *BlueprintRegistry, checkpoints Checkpointer) *WorkflowHandler {
	return &WorkflowHandler{runtime: rt, blueprints: blueprints, checkpoints: checkpoints}
}

// RegisterBlueprint handles POST /blueprints: sanitizes and validates the
// posted document, then stores it under its own ID for later run/resume/
// subflow lookups.
func (h *WorkflowHandler) RegisterBlueprint(c echo.Context) error {
	var req dto.RegisterBlueprintRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
	}

	doc := req.Document
	if doc == nil {
		doc = map[string]interface{}{}
	}
	if req.ID != "" {
		doc["id"] = req.ID
	}

	bp, err := blueprint.FromDocument(doc)
	if err != nil {
		return err
	}

	h.blueprints.Register(bp)
	return c.JSON(http.StatusCreated, map[string]string{"id": bp.ID()})
}

// Run handles POST /blueprints/:id/run: looks the blueprint up by path ID
// and drives it to completion or its first awaiting point.
func (h *WorkflowHandler) Run(c echo.Context) error {
	blueprintID := c.Param("id")
	bp, ok := h.blueprints.Get(blueprintID)
	if !ok {
		return c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not_found", Message: "blueprint not found: " + blueprintID})
	}

	var req dto.RunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
	}

	result, err := h.runtime.Run(c.Request().Context(), bp, req.InitialState, runtime.Options{})
	if err != nil {
		return err
	}

	resp := toExecutionResponse(blueprintID, result)
	h.syncCheckpoint(c.Request().Context(), resp)
	return c.JSON(http.StatusOK, resp)
}

// Resume handles POST /blueprints/:id/resume: reconstructs the execution
// from the caller-supplied context snapshot and resumes the named node, or
// when none is named the first awaiting node in sorted ID order.
func (h *WorkflowHandler) Resume(c echo.Context) error {
	blueprintID := c.Param("id")
	bp, ok := h.blueprints.Get(blueprintID)
	if !ok {
		return c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not_found", Message: "blueprint not found: " + blueprintID})
	}

	var req dto.ResumeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
	}

	result, err := h.runtime.Resume(c.Request().Context(), bp, req.Context, req.Output, req.NodeID, runtime.Options{})
	if err != nil {
		return err
	}

	resp := toExecutionResponse(blueprintID, result)
	h.syncCheckpoint(c.Request().Context(), resp)
	return c.JSON(http.StatusOK, resp)
}

// syncCheckpoint saves a resumable checkpoint while resp is awaiting, or
// drops any existing one once the execution reaches a terminal status.
// Checkpointing is best-effort: a failure here must not fail the HTTP
// response for a run/resume that otherwise succeeded.
func (h *WorkflowHandler) syncCheckpoint(ctx context.Context, resp dto.ExecutionResponse) {
	if h.checkpoints == nil || resp.ExecutionID == "" {
		return
	}
	if resp.Status == string(state.StatusAwaiting) {
		_ = h.checkpoints.Save(ctx, Checkpoint{
			ExecutionID:       resp.ExecutionID,
			BlueprintID:       resp.BlueprintID,
			Status:            resp.Status,
			SerializedContext: resp.Context,
			AwaitingNodeIDs:   resp.AwaitingNodeIDs,
		})
		return
	}
	_ = h.checkpoints.Delete(ctx, resp.ExecutionID)
}

func toExecutionResponse(blueprintID string, result state.WorkflowResult) dto.ExecutionResponse {
	executionID, _ := result.Context[flowctx.KeyExecutionID].(string)
	resp := dto.ExecutionResponse{
		BlueprintID: blueprintID,
		ExecutionID: executionID,
		Status:      string(result.Status),
		Context:     result.Context,
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, e.Message)
	}
	if raw, ok := result.Context[flowctx.KeyAwaitingNodeIDs].([]interface{}); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				resp.AwaitingNodeIDs = append(resp.AwaitingNodeIDs, s)
			}
		}
	}
	return resp
}
