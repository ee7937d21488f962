package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/truly/internal/auth"
	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/service"
	"github.com/prn-tf/truly/internal/validation"
)

// MessageHandler serves anonymous message intake and the owner's inbox.
type MessageHandler struct {
	messageService *service.MessageService
	logger         zerolog.Logger
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(messageService *service.MessageService, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		logger:         logger.With().Str("handler", "message").Logger(),
	}
}

// SendMessage handles POST /api/send-message. No session is needed.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req validation.SendMessageRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if _, err := h.messageService.Send(r.Context(), req.Username, req.Content); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Message sent successfully", nil)
}

// GetMessages handles GET /api/get-messages.
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messageService.ListMessages(r.Context(), auth.GetPrincipal(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	writeSuccess(w, http.StatusOK, "Messages fetched successfully", map[string]interface{}{
		"messages": messages,
	})
}

// GetAcceptMessages handles GET /api/accept-messages.
func (h *MessageHandler) GetAcceptMessages(w http.ResponseWriter, r *http.Request) {
	accepting, err := h.messageService.GetAcceptanceFlag(r.Context(), auth.GetPrincipal(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Message acceptance status fetched", map[string]bool{
		"is_accepting_messages": accepting,
	})
}

// SetAcceptMessages handles POST /api/accept-messages.
func (h *MessageHandler) SetAcceptMessages(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, r, h.logger, domain.ErrUnauthorized)
		return
	}

	var req validation.AcceptMessagesRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	accepting, err := h.messageService.SetAcceptanceFlag(r.Context(), principal, *req.AcceptMessages)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Message acceptance status updated successfully", map[string]bool{
		"is_accepting_messages": accepting,
	})
}
