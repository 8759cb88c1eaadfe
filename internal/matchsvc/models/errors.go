package models

import "errors"

// Registry errors
var (
	ErrNotFound         = errors.New("match not found")
	ErrAlreadyFull      = errors.New("seat already taken")
	ErrAlreadyCompleted = errors.New("match already completed")
	ErrInvalidGameType  = errors.New("invalid game type")
)

// Session errors
var (
	ErrRoomFull           = errors.New("room is full")
	ErrAlreadyInitialized = errors.New("session already initialized")
	ErrUnauthorized       = errors.New("caller not seated in this match")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrIllegalMove        = errors.New("illegal move")
	ErrMatchNotReady      = errors.New("match not ready, waiting for second player")
)

// Coordinator errors
var (
	ErrConflict           = errors.New("registry and session disagree")
	ErrRoomCreationFailed = errors.New("room creation failed")
	ErrInvalidResult      = errors.New("reported winner does not agree with the result")
)
