package handlers

import (
	"github.com/nfrund/hackchat/internal/validation"
)

// CustomValidator adapts validation.Validator to Echo's Validator interface.
type CustomValidator struct {
	validator *validation.Validator
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validation.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct("request", i)
}

// MarkReadRequest is the body of POST /api/chat/read.
type MarkReadRequest struct {
	MessageIDs []string `json:"messageIds" validate:"min=1,dive,required"`
	UserID     string   `json:"userId"`
	RoomID     string   `json:"roomId"`
}

// DeleteMessageRequest is the body of DELETE /api/chat/message/:messageId.
// UserID is optional; when present it must name the caller.
type DeleteMessageRequest struct {
	UserID string `json:"userId"`
}
