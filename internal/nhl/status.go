package nhl

import (
	"fmt"
	"strings"
)

// Status is the coarse lifecycle state of a game.
type Status int

const (
	StatusUnknown Status = iota
	StatusPreview
	StatusInProgress
	StatusFinal
)

func (s Status) String() string {
	switch s {
	case StatusPreview:
		return "PREVIEW"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusFinal:
		return "FINAL"
	default:
		return "UNKNOWN"
	}
}

// ParseStatusCode maps the stats API statusCode to a Status.
//
// 1 scheduled, 2 pre-game, 8 TBD and 9 postponed are previews; 3 live and
// 4 critical are both in progress; 5, 6 and 7 are variants of final.
func ParseStatusCode(code string) (Status, error) {
	switch strings.TrimSpace(code) {
	case "1", "2", "8", "9":
		return StatusPreview, nil
	case "3", "4":
		return StatusInProgress, nil
	case "5", "6", "7":
		return StatusFinal, nil
	default:
		return StatusUnknown, fmt.Errorf("%w: %q", ErrUnknownStatus, code)
	}
}
