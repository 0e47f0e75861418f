package server

import (
	"errors"
	"io"
	"net/http"

	"waifugen/pkg/domain"
	"waifugen/services/web/internal/app"
)

type checkoutRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req checkoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	session, err := s.app.CreateCheckout(r.Context(), user, req.Quantity)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "web.checkout", "success", "user_id", user.ID, "session_id", session.ID)
	w.Header().Set("Location", session.URL)
	writeJSON(w, http.StatusSeeOther, map[string]string{"id": session.ID, "url": session.URL})
}

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.webhookLimiter, "too many webhook requests") {
		s.audit(r, "web.webhook", "rate_limited")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(payload) > maxWebhookBody {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	res, err := s.app.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, app.ErrInvalidSignature) {
			s.audit(r, "web.webhook.signature", "fail")
			writeError(w, http.StatusBadRequest, app.ErrInvalidSignature.Error())
			return
		}
		writeAppError(w, r, err)
		return
	}
	if res.Handled && !res.Duplicate {
		s.audit(r, "web.webhook", "success", "event_type", res.EventType, "credits", res.Credits)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDescriptionComplete(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)
	var cb app.DescriptionCallback
	if err := decodeJSON(r, &cb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.CompleteDescription(r.Context(), token, cb); err != nil {
		if errors.Is(err, app.ErrInvalidCallbackToken) {
			s.audit(r, "web.callback.token", "fail", "task_id", cb.TaskID)
		}
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
