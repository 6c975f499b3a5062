// models/errors.go
package models

import "errors"

// Code 对外错误码，原样下发给客户端
type Code string

const (
	CodeSessionNotFound         Code = "SESSION_NOT_FOUND"
	CodeGameAlreadyStarted      Code = "GAME_ALREADY_STARTED"
	CodeGameNotStarted          Code = "GAME_NOT_STARTED"
	CodeGameNotPaused           Code = "GAME_NOT_PAUSED"
	CodeSessionFull             Code = "SESSION_FULL"
	CodeAlreadyInSession        Code = "ALREADY_IN_SESSION"
	CodeCharacterNotFound       Code = "CHARACTER_NOT_FOUND"
	CodeNotYourTurn             Code = "NOT_YOUR_TURN"
	CodeInvalidUnit             Code = "INVALID_UNIT"
	CodePlayerNotInGame         Code = "PLAYER_NOT_IN_GAME"
	CodeGameStateNotInitialized Code = "GAME_STATE_NOT_INITIALIZED"
	CodeExecutionError          Code = "EXECUTION_ERROR"
	CodeDMRequired              Code = "DM_REQUIRED"
	CodeCannotKickDM            Code = "CANNOT_KICK_DM"
	CodeNotEnoughPlayers        Code = "NOT_ENOUGH_PLAYERS"
	CodeNoActiveTurn            Code = "NO_ACTIVE_TURN"
	CodeAuthRequired            Code = "AUTH_REQUIRED"
	CodeNotInSession            Code = "NOT_IN_SESSION"
)

// GameError carries a client-facing code. The message stays server-side
// in logs; only the code crosses the wire.
type GameError struct {
	Code    Code
	Message string
}

func (e *GameError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// NewGameError 构造带错误码的错误
func NewGameError(code Code, message string) *GameError {
	return &GameError{Code: code, Message: message}
}

// CodeOf extracts the error code, defaulting to EXECUTION_ERROR for
// errors that did not originate from a precondition check.
func CodeOf(err error) Code {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeExecutionError
}
