package app

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"regexp"
	"strings"

	"waifugen/internal/util"
	"waifugen/pkg/auth"
	"waifugen/pkg/domain"
	"waifugen/pkg/mail"
	"waifugen/pkg/store"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

// SignUp registers a local account, mails the verification link and opens a session.
func (a *App) SignUp(ctx context.Context, username, email, password string) (domain.User, string, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	if !usernamePattern.MatchString(username) {
		return domain.User{}, "", ErrInvalidUsername
	}
	if !validEmail(email) {
		return domain.User{}, "", ErrInvalidEmail
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	verifyToken, err := a.verifyTokens.Issue(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue verification token: %w", err)
	}
	user, err := a.store.CreateUser(ctx, domain.User{
		ID:                 util.NewID(),
		Username:           username,
		Email:              email,
		PasswordHash:       passwordHash,
		DisplayName:        username,
		RemainingCreations: a.signupCredits,
		VerificationToken:  verifyToken,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateUsername):
			return domain.User{}, "", ErrUsernameTaken
		case errors.Is(err, store.ErrDuplicateEmail):
			return domain.User{}, "", ErrEmailInUse
		}
		return domain.User{}, "", fmt.Errorf("create user: %w", err)
	}
	if err := a.sendVerification(ctx, user, verifyToken); err != nil {
		util.LoggerFromContext(ctx).Error("verification mail failed", "user_id", user.ID, "err", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Login accepts a username or an email address.
func (a *App) Login(ctx context.Context, login, password string) (domain.User, string, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return domain.User{}, "", ErrInvalidCredentials
	}
	var (
		user  domain.User
		found bool
		err   error
	)
	if strings.Contains(login, "@") {
		user, found, err = a.store.GetUserByEmail(ctx, normalizeEmail(login))
	} else {
		user, found, err = a.store.GetUserByUsername(ctx, login)
	}
	if err != nil {
		return domain.User{}, "", fmt.Errorf("load user: %w", err)
	}
	if !found || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Logout revokes the session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserFromToken resolves a session token to its user. Invalid, expired and
// revoked tokens report not found; revoker outages fail closed the same way.
func (a *App) UserFromToken(ctx context.Context, token string) (domain.User, bool, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil {
		util.LoggerFromContext(ctx).Debug("session token rejected", "err", err)
		return domain.User{}, false, nil
	}
	if !ok {
		return domain.User{}, false, nil
	}
	return a.store.GetUserByID(ctx, userID)
}

// VerifyEmail consumes a verification token.
func (a *App) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	email, err := a.verifyTokens.Verify(token)
	if err != nil {
		return ErrInvalidToken
	}
	ok, err := a.store.MarkVerified(ctx, email)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	if !ok {
		return ErrInvalidToken
	}
	return nil
}

// ResendVerification issues a fresh token for an unverified account.
func (a *App) ResendVerification(ctx context.Context, user domain.User) error {
	if user.Verified {
		return ErrAlreadyVerified
	}
	token, err := a.verifyTokens.Issue(user.Email)
	if err != nil {
		return fmt.Errorf("issue verification token: %w", err)
	}
	if err := a.store.SetVerificationToken(ctx, user.ID, token); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}
	if err := a.sendVerification(ctx, user, token); err != nil {
		util.LoggerFromContext(ctx).Error("verification mail failed", "user_id", user.ID, "err", err)
		return ErrMailFailed
	}
	return nil
}

func (a *App) sendVerification(ctx context.Context, user domain.User, token string) error {
	name := user.Username
	if name == "" {
		name = user.DisplayName
	}
	return a.mailer.SendVerification(ctx, user.Email, name, mail.VerificationLink(a.baseURL, token))
}

// GoogleAuthURL returns the provider redirect for state.
func (a *App) GoogleAuthURL(state string) (string, error) {
	if a.oauth == nil {
		return "", ErrOAuthDisabled
	}
	return a.oauth.AuthCodeURL(state), nil
}

// GoogleLogin finds the account by Google id, links an existing account with
// the same email, or creates a verified account.
func (a *App) GoogleLogin(ctx context.Context, code string) (domain.User, string, error) {
	if a.oauth == nil {
		return domain.User{}, "", ErrOAuthDisabled
	}
	profile, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("google exchange: %w", err)
	}
	user, found, err := a.store.GetUserByGoogleID(ctx, profile.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("load google user: %w", err)
	}
	if !found && profile.Email != "" {
		var byEmail bool
		user, byEmail, err = a.store.GetUserByEmail(ctx, profile.Email)
		if err != nil {
			return domain.User{}, "", fmt.Errorf("load user by email: %w", err)
		}
		if byEmail {
			if err := a.store.LinkGoogleAccount(ctx, user.ID, profile.ID, profile.AvatarURL); err != nil {
				return domain.User{}, "", fmt.Errorf("link google account: %w", err)
			}
			user.GoogleID = profile.ID
			user.Verified = true
			found = true
		}
	}
	if !found {
		user, err = a.store.CreateUser(ctx, domain.User{
			ID:                 util.NewID(),
			Email:              profile.Email,
			GoogleID:           profile.ID,
			DisplayName:        profile.Name,
			AvatarURL:          profile.AvatarURL,
			RemainingCreations: a.signupCredits,
			Verified:           true,
		})
		if err != nil {
			return domain.User{}, "", fmt.Errorf("create google user: %w", err)
		}
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := netmail.ParseAddress(email)
	return err == nil && addr.Address == email
}
