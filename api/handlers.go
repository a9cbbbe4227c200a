package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/llm"
	"github.com/coilworks/mnemo/pkg/memory"
)

// SearchRequest is the body for POST /memories/search.
type SearchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// AddRequest is the body for POST /memories.
type AddRequest struct {
	Messages []memory.Message `json:"messages"`
	UserID   string           `json:"user_id,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListMemories returns all memories for a user.
func (s *Server) handleListMemories(c *fiber.Ctx) error {
	userID := s.userID(c.Query("user_id"))

	memories, err := s.store.GetAll(c.Context(), userID)
	if err != nil {
		return s.storeError(c, err, "failed to list memories")
	}

	return c.JSON(map[string]any{
		"count":    len(memories),
		"memories": memories,
	})
}

// handleSearchMemories runs a semantic query over stored memories.
func (s *Server) handleSearchMemories(c *fiber.Ctx) error {
	var req SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "query is required"})
	}

	results, err := s.store.Search(c.Context(), req.Query, memory.SearchOptions{
		UserID: s.userID(req.UserID),
		Limit:  req.Limit,
	})
	if err != nil {
		return s.storeError(c, err, "search failed")
	}

	return c.JSON(map[string]any{
		"query":   req.Query,
		"count":   len(results),
		"results": results,
	})
}

// handleAddMemory stores messages as a new memory.
func (s *Server) handleAddMemory(c *fiber.Ctx) error {
	var req AddRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}
	if len(req.Messages) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "messages are required"})
	}

	result, err := s.store.Add(c.Context(), req.Messages, memory.AddOptions{
		UserID:   s.userID(req.UserID),
		Metadata: req.Metadata,
	})
	if err != nil {
		return s.storeError(c, err, "failed to store memory")
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// handleDeleteMemory removes one memory by ID.
func (s *Server) handleDeleteMemory(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "id parameter required"})
	}

	if err := s.store.Delete(c.Context(), id); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "memory not found"})
		}
		return s.storeError(c, err, "failed to delete memory")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// handleDeleteAllMemories removes every memory for a user.
func (s *Server) handleDeleteAllMemories(c *fiber.Ctx) error {
	userID := s.userID(c.Query("user_id"))

	if err := s.store.DeleteAll(c.Context(), userID); err != nil {
		return s.storeError(c, err, "failed to delete memories")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// userID applies the configured default user scope.
func (s *Server) userID(requested string) string {
	if requested != "" {
		return requested
	}
	return s.config.UserID
}

// storeError maps a classified store failure onto an HTTP status.
func (s *Server) storeError(c *fiber.Ctx, err error, msg string) error {
	s.logger.Error(msg, zap.Error(err))

	status := fiber.StatusBadGateway
	var classified *memory.ClassifiedError
	if errors.As(err, &classified) {
		switch classified.Kind {
		case memory.KindValidation:
			status = fiber.StatusBadRequest
		case memory.KindTimeout:
			status = fiber.StatusGatewayTimeout
		}
	}

	return c.Status(status).JSON(llm.ErrorResponse{Error: msg})
}
