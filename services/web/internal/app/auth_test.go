package app

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"waifugen/pkg/oauth"
)

func TestSignUpGrantsCreditsAndMailsVerificationLink(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, token, err := env.app.SignUp(ctx, "sakura", "Sakura@Example.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if token == "" {
		t.Fatalf("expected session token")
	}
	if user.Email != "sakura@example.com" || user.Verified {
		t.Fatalf("unexpected user: %+v", user)
	}
	balance, err := env.app.Balance(ctx, user.ID)
	if err != nil || balance != 5 {
		t.Fatalf("balance = %d, %v; want 5", balance, err)
	}

	mail := env.mailer.last(t)
	if mail.to != "sakura@example.com" || mail.username != "sakura" {
		t.Fatalf("unexpected mail: %+v", mail)
	}
	if !strings.HasPrefix(mail.link, testBaseURL+"/verify-email?token=") {
		t.Fatalf("unexpected link: %s", mail.link)
	}
	parsed, err := url.Parse(mail.link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	if err := env.app.VerifyEmail(ctx, parsed.Query().Get("token")); err != nil {
		t.Fatalf("verify: %v", err)
	}
	got, _, _ := env.store.GetUserByID(ctx, user.ID)
	if !got.Verified {
		t.Fatalf("expected verified user")
	}
}

func TestSignUpSucceedsWhenMailFails(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = errors.New("smtp down")

	if _, _, err := env.app.SignUp(context.Background(), "hana", "hana@example.com", "Passw0rd!"); err != nil {
		t.Fatalf("signup should not fail on mail error: %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, _, err := env.app.SignUp(ctx, "taken", "first@example.com", "Passw0rd!"); err != nil {
		t.Fatalf("seed signup: %v", err)
	}

	cases := []struct {
		name     string
		username string
		email    string
		password string
		want     error
	}{
		{"short username", "ab", "a@example.com", "Passw0rd!", ErrInvalidUsername},
		{"bad username chars", "bad name", "a@example.com", "Passw0rd!", ErrInvalidUsername},
		{"bad email", "valid_name", "not-an-email", "Passw0rd!", ErrInvalidEmail},
		{"duplicate username", "taken", "other@example.com", "Passw0rd!", ErrUsernameTaken},
		{"duplicate email", "someone", "FIRST@example.com", "Passw0rd!", ErrEmailInUse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := env.app.SignUp(ctx, tc.username, tc.email, tc.password)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}

	if _, _, err := env.app.SignUp(ctx, "weakpass", "weak@example.com", "password"); err == nil {
		t.Fatalf("expected weak password to be rejected")
	}
}

func TestLoginByUsernameOrEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _, err := env.app.SignUp(ctx, "mei", "mei@example.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	for _, login := range []string{"mei", "MEI@example.com"} {
		got, token, err := env.app.Login(ctx, login, "Passw0rd!")
		if err != nil {
			t.Fatalf("login %q: %v", login, err)
		}
		if got.ID != user.ID {
			t.Fatalf("login %q returned user %s", login, got.ID)
		}
		resolved, ok, err := env.app.UserFromToken(ctx, token)
		if err != nil || !ok || resolved.ID != user.ID {
			t.Fatalf("session did not resolve: %+v ok=%v err=%v", resolved, ok, err)
		}
	}

	if _, _, err := env.app.Login(ctx, "mei", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, _, err := env.app.Login(ctx, "nobody", "Passw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, token, err := env.app.SignUp(ctx, "yui", "yui@example.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := env.app.Logout(token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok, _ := env.app.UserFromToken(ctx, token); ok {
		t.Fatalf("expected revoked session")
	}
}

func TestVerifyEmailRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	for _, token := range []string{"", "garbage"} {
		if err := env.app.VerifyEmail(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	unverified := env.seedUser(t, "u1", 1, false)
	verified := env.seedUser(t, "u2", 1, true)

	if err := env.app.ResendVerification(ctx, unverified); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if env.mailer.last(t).to != unverified.Email {
		t.Fatalf("mail not sent to %s", unverified.Email)
	}
	if err := env.app.ResendVerification(ctx, verified); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}

func TestGoogleLoginLinksExistingAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	existing := env.seedUser(t, "u1", 2, false)
	env.oauth.profile = oauth.Profile{ID: "g-1", Email: existing.Email, Name: "Existing", AvatarURL: "https://img.test/a.png"}

	user, token, err := env.app.GoogleLogin(ctx, "code")
	if err != nil {
		t.Fatalf("google login: %v", err)
	}
	if user.ID != existing.ID || token == "" {
		t.Fatalf("expected existing account, got %+v", user)
	}
	stored, _, _ := env.store.GetUserByGoogleID(ctx, "g-1")
	if stored.ID != existing.ID || !stored.Verified {
		t.Fatalf("google id not linked: %+v", stored)
	}
}

func TestGoogleLoginCreatesVerifiedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.oauth.profile = oauth.Profile{ID: "g-2", Email: "new@example.com", Name: "Newcomer"}

	user, _, err := env.app.GoogleLogin(ctx, "code")
	if err != nil {
		t.Fatalf("google login: %v", err)
	}
	if !user.Verified || user.RemainingCreations != 5 || user.DisplayName != "Newcomer" {
		t.Fatalf("unexpected new user: %+v", user)
	}

	again, _, err := env.app.GoogleLogin(ctx, "code")
	if err != nil {
		t.Fatalf("second google login: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("expected same account on second login")
	}
}
