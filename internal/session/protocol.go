// Package session talks to the game server over its binary-framed TCP
// protocol.
package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"railhaul/internal/domain"
)

type Action uint32

const (
	ActionLogin   Action = 1
	ActionLogout  Action = 2
	ActionMove    Action = 3
	ActionUpgrade Action = 4
	ActionTurn    Action = 5
	ActionPlayer  Action = 6
	ActionMap     Action = 10
)

func (a Action) String() string {
	switch a {
	case ActionLogin:
		return "LOGIN"
	case ActionLogout:
		return "LOGOUT"
	case ActionMove:
		return "MOVE"
	case ActionUpgrade:
		return "UPGRADE"
	case ActionTurn:
		return "TURN"
	case ActionPlayer:
		return "PLAYER"
	case ActionMap:
		return "MAP"
	default:
		return fmt.Sprintf("ACTION(%d)", uint32(a))
	}
}

type Result uint32

const (
	ResultOkey                   Result = 0
	ResultBadCommand             Result = 1
	ResultResourceNotFound       Result = 2
	ResultAccessDenied           Result = 3
	ResultInappropriateGameState Result = 4
	ResultTimeout                Result = 5
	ResultInternalServerError    Result = 500
)

func (r Result) String() string {
	switch r {
	case ResultOkey:
		return "OKEY"
	case ResultBadCommand:
		return "BAD_COMMAND"
	case ResultResourceNotFound:
		return "RESOURCE_NOT_FOUND"
	case ResultAccessDenied:
		return "ACCESS_DENIED"
	case ResultInappropriateGameState:
		return "INAPPROPRIATE_GAME_STATE"
	case ResultTimeout:
		return "TIMEOUT"
	case ResultInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	default:
		return fmt.Sprintf("RESULT(%d)", uint32(r))
	}
}

// Map layers.
const (
	LayerStatic      = 0
	LayerDynamic     = 1
	LayerCoordinates = 10
)

// maxFrame bounds a single message body.
const maxFrame = 64 << 20

// ResultError is a non-zero result code returned by the server.
type ResultError struct {
	Action  Action
	Code    Result
	Message string
}

func (e *ResultError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Action, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Action, e.Code, e.Message)
}

func (e *ResultError) Is(target error) bool {
	return target == domain.ErrRemoteRejected
}

var errFrameTooLarge = errors.New("frame exceeds size limit")

// writeFrame writes [code:4][len:4][body:len], little endian. Requests
// carry an action in the code slot, responses a result.
func writeFrame(w io.Writer, code uint32, body []byte) error {
	header := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint32(header[0:4], code)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)))
	if _, err := w.Write(append(header, body...)); err != nil {
		return err
	}
	return nil
}

func readFrame(r io.Reader) (uint32, []byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	code := binary.LittleEndian.Uint32(header[0:4])
	size := binary.LittleEndian.Uint32(header[4:8])
	if size > maxFrame {
		return 0, nil, fmt.Errorf("%w: %d bytes", errFrameTooLarge, size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return code, body, nil
}
