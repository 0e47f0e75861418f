package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"waifugen/internal/util"
	"waifugen/pkg/auth"
	"waifugen/services/web/internal/app"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeFor(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

var badRequestErrors = []error{
	app.ErrInvalidUsername,
	app.ErrInvalidEmail,
	app.ErrInvalidToken,
	app.ErrInvalidAttribute,
	app.ErrInvalidMessage,
	app.ErrInvalidQuantity,
	app.ErrInvalidDescription,
	app.ErrInvalidSlideshow,
	app.ErrInvalidSignature,
	auth.ErrPasswordTooShort,
	auth.ErrPasswordTooLong,
	auth.ErrPasswordMissingUpper,
	auth.ErrPasswordMissingLower,
	auth.ErrPasswordMissingDigit,
	auth.ErrPasswordMissingOther,
}

// statusForError maps use case errors to HTTP statuses. Unknown errors are 500.
func statusForError(err error) int {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	switch {
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrInvalidCallbackToken):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrNotEnoughCredits), errors.Is(err, app.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, app.ErrCreationNotFound), errors.Is(err, app.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrUsernameTaken), errors.Is(err, app.ErrEmailInUse),
		errors.Is(err, app.ErrAlreadyVerified), errors.Is(err, app.ErrTaskClosed):
		return http.StatusConflict
	case errors.Is(err, app.ErrGenerationFailed), errors.Is(err, app.ErrMailFailed):
		return http.StatusBadGateway
	case errors.Is(err, app.ErrPaymentsDisabled), errors.Is(err, app.ErrOAuthDisabled),
		errors.Is(err, app.ErrSlideshowDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError hides unexpected errors behind "internal error" and logs them.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func errorCodeFor(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "incorrect username or password":
		return "AUTH_INVALID_CREDENTIALS"
	case message == "invalid token":
		return "AUTH_INVALID_VERIFICATION_TOKEN"
	case message == "email not verified":
		return "AUTH_EMAIL_NOT_VERIFIED"
	case message == "username is already taken":
		return "AUTH_USERNAME_TAKEN"
	case message == "email is already in use":
		return "AUTH_EMAIL_IN_USE"
	case strings.HasPrefix(message, "password must"):
		return "AUTH_WEAK_PASSWORD"
	case message == "invalid oauth state":
		return "AUTH_INVALID_OAUTH_STATE"
	case message == "not enough credits":
		return "CREDITS_INSUFFICIENT"
	case message == "error checking credits":
		return "CREDITS_CHECK_FAILED"
	case message == "creation not found or not public":
		return "CREATION_NOT_FOUND"
	case message == app.ErrNotOwner.Error():
		return "CREATION_FORBIDDEN"
	case message == "image generation failed":
		return "GENERATION_FAILED"
	case strings.HasPrefix(message, "invalid attribute"):
		return "GENERATION_INVALID_ATTRIBUTE"
	case message == "invalid webhook signature":
		return "PAYMENT_INVALID_SIGNATURE"
	case message == "invalid quantity":
		return "PAYMENT_INVALID_QUANTITY"
	case message == "invalid callback token":
		return "DESCRIPTION_INVALID_TOKEN"
	case message == "description task not found":
		return "DESCRIPTION_TASK_NOT_FOUND"
	case message == "description task already closed":
		return "DESCRIPTION_TASK_CLOSED"
	case message == "invalid json body":
		return "REQUEST_INVALID_JSON"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "internal error":
		return "SYSTEM_INTERNAL_ERROR"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_INVALID"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "SYSTEM_UNAVAILABLE"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
