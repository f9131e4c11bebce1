// Package visit holds the inbound chat events and the canonical visit record
// built from an accepted location share.
package visit

import "time"

// LocationEvent is a location share delivered by a chat transport.
type LocationEvent struct {
	ChatUserID  int64
	DisplayName string
	Username    string
	Latitude    float64
	Longitude   float64
	OccurredAt  time.Time
}

// Command names understood by the bot.
const (
	CommandStart  = "start"
	CommandStatus = "status"
	CommandCount  = "count"
)

// CommandEvent is a slash command delivered by a chat transport.
type CommandEvent struct {
	ChatUserID  int64
	DisplayName string
	Command     string
}

// Record is the persisted artifact of one accepted location event.
type Record struct {
	ID          string
	OccurredAt  time.Time
	AccountID   int64
	ChatUserID  int64
	DisplayName string
	Phone       *string
	Latitude    float64
	Longitude   float64
	MapLink     string
	CustomerTag *string
}
