package model

import "time"

// TimestampLayout is the wall-clock format stamped on relayed chat messages.
const TimestampLayout = "15:04:05"

// ChatMessage is a relayed chat line. It is never persisted.
type ChatMessage struct {
	From      string
	Text      string
	Timestamp time.Time
}

// Stamp returns the timestamp formatted for the wire.
func (m ChatMessage) Stamp() string {
	return m.Timestamp.Format(TimestampLayout)
}

// IsSystem reports whether the message is a server notice.
func (m ChatMessage) IsSystem() bool {
	return m.From == SystemSender
}
