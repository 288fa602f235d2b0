package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const genericMessage = "Something went wrong. Please try again."

// knownMessages maps fragments of backend error strings to text suitable for
// showing to an end user. First match wins.
var knownMessages = []struct {
	fragment string
	message  string
}{
	{"source text must be at least", "The text is too short. Paste at least 1000 characters."},
	{"source text must be at most", "The text is too long. Keep it under 10000 characters."},
	{"front is required", "The front of the card cannot be empty."},
	{"back is required", "The back of the card cannot be empty."},
	{"front must be at most", "The front of the card is limited to 200 characters."},
	{"back must be at most", "The back of the card is limited to 500 characters."},
	{"must be a uuid v4", "That item reference is invalid."},
	{"only .pdf files are supported", "Only PDF documents can be uploaded."},
	{"only .png", "Only PNG, JPEG or WebP images can be uploaded."},
	{"file is not a png", "Only PNG, JPEG or WebP images can be uploaded."},
	{"uploads are not enabled", "Uploads are not available on this server."},
	{"file exceeds", "The document is too large."},
	{"too many generation requests", "You have reached the generation limit. Try again later."},
	{"missing bearer token", "Please sign in again."},
	{"invalid or expired token", "Your session has expired. Please sign in again."},
	{"access denied", "You do not have access to this item."},
	{"not found", "This item no longer exists."},
}

// UserMessage turns err into a short sentence for an end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrPollTimeout):
		return "Generation is taking longer than expected. Check back in a moment."
	case errors.Is(err, ErrGenerationFailed):
		return "No flashcards could be generated from this text. Try a different passage."
	case errors.Is(err, context.Canceled):
		return "The operation was cancelled."
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return genericMessage
	}
	lower := strings.ToLower(apiErr.Message)
	for _, known := range knownMessages {
		if strings.Contains(lower, known.fragment) {
			return known.message
		}
	}
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized:
		return "Please sign in again."
	case apiErr.StatusCode >= http.StatusInternalServerError:
		return "The server had a problem. Please try again."
	}
	return genericMessage
}
