package app

import (
	"errors"

	"waifugen/pkg/ai"
	"waifugen/pkg/payment"
)

var (
	// ErrInvalidCredentials does not say which half of the login was wrong.
	ErrInvalidCredentials = errors.New("Incorrect username or password")

	ErrInvalidUsername = errors.New("username must be 3-32 letters, digits, '_', '.' or '-'")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrUsernameTaken   = errors.New("Username is already taken")
	ErrEmailInUse      = errors.New("Email is already in use")

	ErrInvalidToken    = errors.New("Invalid token")
	ErrAlreadyVerified = errors.New("email already verified")
	ErrMailFailed      = errors.New("failed to send verification email")
	ErrOAuthDisabled   = errors.New("google login not configured")

	ErrNotEnoughCredits = errors.New("Not enough credits")
	ErrInvalidAttribute = ai.ErrInvalidAttribute
	ErrGenerationFailed = errors.New("image generation failed")

	ErrCreationNotFound = errors.New("Creation not found or not public")
	ErrNotOwner         = errors.New("only the owner can change this creation")
	ErrInvalidMessage   = errors.New("message must be 1-2000 characters")

	ErrPaymentsDisabled = errors.New("payments not configured")
	ErrInvalidSignature = payment.ErrInvalidSignature
	ErrInvalidQuantity  = payment.ErrInvalidQuantity

	ErrInvalidCallbackToken = errors.New("invalid callback token")
	ErrInvalidDescription   = errors.New("description must be 1-4000 characters")
	ErrTaskNotFound         = errors.New("description task not found")
	ErrTaskClosed           = errors.New("description task already closed")

	ErrSlideshowDisabled = errors.New("slideshow service not configured")
	ErrInvalidSlideshow  = errors.New("invalid slideshow request")
)
