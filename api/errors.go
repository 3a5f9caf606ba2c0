package api

import "errors"

var (
	errMissingAPIKey     = errors.New("missing X-API-Key header")
	errUnknownAPIKey     = errors.New("unrecognized API key")
	errAuthNotConfigured = errors.New("authentication required but no API keys are configured")
	errBodyTooLarge      = errors.New("request body exceeds configured size limit")
	errTextTooLarge      = errors.New("text exceeds maximum allowed size")
	errContextTooLarge   = errors.New("context exceeds maximum allowed size")
	errPresetTooLong     = errors.New("preset name exceeds maximum allowed length")
	errInvalidKind       = errors.New("kind must be \"prompt\" or \"response\"")
	errMethodNotAllowed  = errors.New("method not allowed")
)
