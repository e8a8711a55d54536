package room

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/takedown/internal/escrow"
	"github.com/jason-s-yu/takedown/internal/ledger"
	"github.com/jason-s-yu/takedown/internal/models"
)

// Transition failures. Ledger and escrow errors are re-exported so callers
// only need this package to classify a failure.
var (
	ErrInvalidConfiguration = models.ErrInvalidConfiguration
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomAlreadyExists    = errors.New("room already exists")
	ErrRoomNotWaiting       = errors.New("room is not waiting for players")
	ErrRoomNotActive        = errors.New("room is not active")
	ErrRoomNotFinished      = errors.New("room is not finished")
	ErrRoomClosed           = errors.New("room is already finished or cancelled")
	ErrRoomFull             = errors.New("room is full")
	ErrAlreadyJoined        = errors.New("player already joined")
	ErrPlayerNotInRoom      = errors.New("player is not in the room")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidWinner        = errors.New("invalid winner")
	ErrUnknownResource      = errors.New("unknown resource kind")

	ErrInsufficientFunds  = ledger.ErrInsufficientFunds
	ErrTransferRejected   = ledger.ErrTransferRejected
	ErrNoDestination      = ledger.ErrNoDestination
	ErrArithmeticOverflow = escrow.ErrArithmeticOverflow
)

// Error wraps a failure with the transition and room it happened in.
type Error struct {
	Op     string
	RoomID uuid.UUID
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("room %s %s: %v", e.Op, e.RoomID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, roomID uuid.UUID, err error) error {
	return &Error{Op: op, RoomID: roomID, Err: err}
}

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown              Code = "UNKNOWN"
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
	CodeRoomNotFound         Code = "ROOM_NOT_FOUND"
	CodeRoomAlreadyExists    Code = "ROOM_ALREADY_EXISTS"
	CodeRoomNotWaiting       Code = "ROOM_NOT_WAITING"
	CodeRoomNotActive        Code = "ROOM_NOT_ACTIVE"
	CodeRoomNotFinished      Code = "ROOM_NOT_FINISHED"
	CodeRoomClosed           Code = "ROOM_CLOSED"
	CodeRoomFull             Code = "ROOM_FULL"
	CodeAlreadyJoined        Code = "ALREADY_JOINED"
	CodePlayerNotInRoom      Code = "PLAYER_NOT_IN_ROOM"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeInvalidWinner        Code = "INVALID_WINNER"
	CodeUnknownResource      Code = "UNKNOWN_RESOURCE"
	CodeInsufficientFunds    Code = "INSUFFICIENT_FUNDS"
	CodeTransferRejected     Code = "TRANSFER_REJECTED"
	CodeNoDestination        Code = "NO_DESTINATION"
	CodeArithmeticOverflow   Code = "ARITHMETIC_OVERFLOW"
	CodeInvariantViolated    Code = "INVARIANT_VIOLATED"
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrInvalidConfiguration, CodeInvalidConfiguration},
	{ErrRoomNotFound, CodeRoomNotFound},
	{ErrRoomAlreadyExists, CodeRoomAlreadyExists},
	{ErrRoomNotWaiting, CodeRoomNotWaiting},
	{ErrRoomNotActive, CodeRoomNotActive},
	{ErrRoomNotFinished, CodeRoomNotFinished},
	{ErrRoomClosed, CodeRoomClosed},
	{ErrRoomFull, CodeRoomFull},
	{ErrAlreadyJoined, CodeAlreadyJoined},
	{ErrPlayerNotInRoom, CodePlayerNotInRoom},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrInvalidWinner, CodeInvalidWinner},
	{ErrUnknownResource, CodeUnknownResource},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrTransferRejected, CodeTransferRejected},
	{ErrNoDestination, CodeNoDestination},
	{ErrArithmeticOverflow, CodeArithmeticOverflow},
	{models.ErrInvariant, CodeInvariantViolated},
}

// CodeOf classifies err. The first matching sentinel wins, so a transfer
// failure that also carries a rollback error still reports the transfer.
func CodeOf(err error) Code {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}
