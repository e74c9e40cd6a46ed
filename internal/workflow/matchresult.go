package workflow

import "fmt"

// MatchResult represents the result of matching a workflow against an event.
type MatchResult uint8

const (
	MatchResultUndefined MatchResult = 0
	EventSourceMismatch              = iota
	FilterMismatch
	Match
)

var matchResultString = [...]string{
	MatchResultUndefined: "undefined",
	EventSourceMismatch:  "event source mismatch",
	FilterMismatch:       "filter mismatch",
	Match:                "workflow matches",
}

func (m *MatchResult) String() string {
	if int(*m) > len(matchResultString)-1 {
		return fmt.Sprintf("unsupported MatchResult value: %d", m)
	}

	return matchResultString[*m]
}
