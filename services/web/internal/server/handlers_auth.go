package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"waifugen/pkg/domain"
	"waifugen/pkg/oauth"
)

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleAuthOptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"google": s.app.OAuthEnabled(),
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		s.audit(r, "web.signup", "rate_limited")
		return
	}
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		s.audit(r, "web.signup", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.SignUp(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.audit(r, "web.signup", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "web.signup", "success", "user_id", user.ID)
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "web.login", "rate_limited")
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.audit(r, "web.login", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	login := req.Login
	if strings.TrimSpace(login) == "" {
		login = req.Email
	}
	user, token, err := s.app.Login(r.Context(), login, req.Password)
	if err != nil {
		s.audit(r, "web.login", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "web.login", "success", "user_id", user.ID)
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := s.sessionToken(r)
	if ok {
		if err := s.app.Logout(token); err != nil {
			s.audit(r, "web.logout", "fail", "reason", err.Error())
			writeAppError(w, r, err)
			return
		}
		s.audit(r, "web.logout", "success")
	}
	s.clearCookie(w, s.cookieName)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	state, err := oauth.NewState()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	target, err := s.app.GoogleAuthURL(state)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		s.audit(r, "web.oauth", "fail", "reason", "state_mismatch")
		writeError(w, http.StatusBadRequest, "invalid oauth state")
		return
	}
	s.clearCookie(w, oauthStateCookie)
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		s.audit(r, "web.oauth", "fail", "reason", "missing_code")
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	user, token, err := s.app.GoogleLogin(r.Context(), code)
	if err != nil {
		s.audit(r, "web.oauth", "fail", "reason", err.Error())
		if statusForError(err) == http.StatusInternalServerError {
			writeError(w, http.StatusUnauthorized, "google login failed")
			return
		}
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "web.oauth", "success", "user_id", user.ID)
	s.setSessionCookie(w, token)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := s.app.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		s.audit(r, "web.verify_email", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "web.verify_email", "success")
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.ResendVerification(r.Context(), user); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"sent": true})
}
