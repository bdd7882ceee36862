package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "retailsales/internal/errors"
	mw "retailsales/internal/middleware"
)

const maxClientLogData = 16

// ClientLogHandler records errors reported by the browser page
type ClientLogHandler struct {
	validator    *mw.RequestValidator
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewClientLogHandler creates a new client log handler
func NewClientLogHandler(logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ClientLogHandler {
	return &ClientLogHandler{
		validator:    mw.NewRequestValidator(),
		logger:       logger.With(slog.String("handler", "client_log")),
		errorHandler: errorHandler,
	}
}

// LogRequest represents a client log entry
type LogRequest struct {
	Level   string                 `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Message string                 `json:"message" validate:"required,max=1000"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Source  string                 `json:"source,omitempty" validate:"max=100"`
}

// Handle processes POST /api/logs
func (h *ClientLogHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req LogRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	attrs := []slog.Attr{slog.String("client_source", req.Source)}
	if len(req.Data) > 0 && len(req.Data) <= maxClientLogData {
		attrs = append(attrs, slog.Any("data", req.Data))
	}

	h.logger.LogAttrs(r.Context(), clientLevel(req.Level), req.Message, attrs...)

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]bool{"success": true})
}

// clientLevel maps the page's level name onto slog; anything unknown is info.
func clientLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}
