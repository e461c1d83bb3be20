package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/agent"
	"github.com/math-professor/backend/internal/storage/models"
	"github.com/math-professor/backend/pkg/logger"
)

type WebSocketHandler struct {
	agent *agent.Agent
}

func NewWebSocketHandler(a *agent.Agent) *WebSocketHandler {
	return &WebSocketHandler{agent: a}
}

// HandleConnection serves one client. Each "query" message runs the pipeline
// with stage events streamed as status frames, then the solution text word by
// word, then a complete frame with the full response.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	// The connection's lifetime bounds every pipeline run started from it, so
	// an abandoned query stops at its next blocking call instead of running on.
	ctx, cancel := context.WithCancel(context.Background())

	defer func() {
		cancel()
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type     string `json:"type"`
			Question string `json:"question"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "query" {
			continue
		}

		if err := h.streamResponse(ctx, c, msg.Question); err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			break
		}
	}
}

func (h *WebSocketHandler) streamResponse(ctx context.Context, c *websocket.Conn, question string) error {
	onStage := func(event agent.StageEvent) {
		h.send(c, map[string]interface{}{
			"type":    "status",
			"stage":   event.State.String(),
			"message": event.Message,
		})
	}

	resp, err := h.agent.ProcessQueryWithProgress(ctx, question, onStage)
	if err != nil {
		if rej, ok := agent.IsRejection(err); ok {
			return h.send(c, map[string]interface{}{
				"type":   "rejected",
				"stage":  rej.Stage.String(),
				"reason": rej.Reason,
			})
		}
		if errors.Is(err, agent.ErrUpstreamUnavailable) {
			return h.send(c, map[string]interface{}{
				"type":  "error",
				"error": "Service temporarily unavailable. Please try again later.",
			})
		}
		return h.send(c, map[string]interface{}{
			"type":  "error",
			"error": "Failed to process query",
		})
	}

	for _, word := range splitIntoWords(resp.Explanation) {
		if err := h.send(c, map[string]interface{}{
			"type":    "chunk",
			"content": word + " ",
		}); err != nil {
			return err
		}
	}

	return h.sendComplete(c, resp)
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg map[string]interface{}) error {
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, resp *models.Response) error {
	return c.WriteJSON(map[string]interface{}{
		"type":       "complete",
		"query_id":   resp.QueryID,
		"answer":     resp.Answer,
		"route":      resp.Route,
		"confidence": resp.Confidence,
		"sources":    resp.Sources,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
