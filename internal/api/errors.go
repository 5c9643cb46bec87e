package api

import (
	"errors"
	"net/http"

	"github.com/satindergrewal/diskjockey/internal/audio"
	"github.com/satindergrewal/diskjockey/internal/deck"
	"github.com/satindergrewal/diskjockey/internal/mixer"
)

var (
	ErrNoFile       = errors.New("no file in upload")
	ErrFileTooLarge = errors.New("upload too large")
)

// statusFor maps a command error to an HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, mixer.ErrUnknownDeck):
		return http.StatusNotFound
	case errors.Is(err, mixer.ErrEngineUnavailable):
		return http.StatusConflict
	case errors.Is(err, audio.ErrSourceLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, deck.ErrPlaybackStart):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrNoFile):
		return http.StatusBadRequest
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}
