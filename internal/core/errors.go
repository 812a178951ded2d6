package core

// Error codes reported to the originating connection.
const (
	ErrCodeInvalidUsername   = "invalid_username"
	ErrCodeDuplicateUsername = "duplicate_username"
	ErrCodeRoomLocked        = "room_locked"
	ErrCodeRoomFull          = "room_full"
	ErrCodeNotAuthorized     = "not_authorized"
	ErrCodeSelfKick          = "self_kick"
	ErrCodeMemberNotFound    = "member_not_found"
	ErrCodeChannelFull       = "channel_full"
	ErrCodeRateLimited       = "rate_limited"

	// Boundary codes
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotJoined  = "not_joined"
	ErrCodeInternal   = "internal_error"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
