package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"waifugen/internal/util"
	"waifugen/pkg/domain"
	"waifugen/pkg/storage"
	"waifugen/services/web/internal/app"
)

type idRequest struct {
	ID string `json:"id"`
}

type publicStatusRequest struct {
	ID       string `json:"id"`
	IsPublic bool   `json:"isPublic"`
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, user domain.User) {
	dash, err := s.app.Dashboard(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) handleCreator(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, map[string]any{
		"waifuName":          app.RandomName(),
		"remainingCreations": user.RemainingCreations,
	})
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowRate(w, r, s.generateLimiter, "too many generation requests") {
		s.audit(r, "web.generate", "rate_limited", "user_id", user.ID)
		return
	}
	var in app.GenerateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.app.Generate(r.Context(), user, in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleMyCreations(w http.ResponseWriter, r *http.Request, user domain.User) {
	q := r.URL.Query()
	opts := app.ParseListOptions(q.Get("sortField"), q.Get("sortOrder"), q.Get("limit"), q.Get("offset"))
	creations, err := s.app.MyCreations(r.Context(), user, opts)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": creations,
		"count": len(creations),
	})
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request, user domain.User) {
	q := r.URL.Query()
	opts := app.ParseListOptions(q.Get("sortField"), q.Get("sortOrder"), q.Get("limit"), q.Get("offset"))
	items, err := s.app.Gallery(r.Context(), user, opts)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleCreation(w http.ResponseWriter, r *http.Request, user domain.User) {
	c, err := s.app.GetCreation(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCreation(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteCreation(r.Context(), user, r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleUpdatePublicStatus(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req publicStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.SetCreationPublic(r.Context(), user, req.ID, req.IsPublic); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "isPublic": req.IsPublic})
}

func (s *Server) handleLikeCreation(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req idRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	likes, liked, err := s.app.ToggleLike(r.Context(), user, req.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "likes": likes, "liked": liked})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, user domain.User) {
	view, err := s.app.ChatHistory(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	answer, err := s.app.SendChatMessage(r.Context(), user, r.PathValue("id"), req.Message)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleSlideshow(w http.ResponseWriter, r *http.Request, _ domain.User) {
	var in app.SlideshowInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reply, err := s.app.GenerateSlideshow(r.Context(), in)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			util.LoggerFromContext(r.Context()).Error("slideshow failed", "err", err)
			writeError(w, http.StatusBadGateway, "slideshow generation failed")
			return
		}
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request, user domain.User) {
	view, err := s.app.Credits(r.Context(), user.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleMedia serves stored images for backends whose presigned URLs point
// back at this service.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !strings.HasPrefix(key, "gallery/") && !strings.HasPrefix(key, "thumbnails/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	rc, err := s.objects.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		util.LoggerFromContext(r.Context()).Error("media read failed", "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
