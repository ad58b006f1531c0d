package serialmux

import "strings"

const (
	EventTypeLine      = "line"
	EventTypeHeading   = "heading"
	EventTypeProximity = "proximity"
	EventTypeCommand   = "command"
	EventTypeAck       = "ack"
	EventTypeUnknown   = "unknown"
)

var eventPrefixes = map[string]string{
	"LINE": EventTypeLine,
	"HDG":  EventTypeHeading,
	"PROX": EventTypeProximity,
	"CMD":  EventTypeCommand,
	"OK":   EventTypeAck,
	"ERR":  EventTypeAck,
}

// ClassifyPayload returns the event type of a controller line from its
// leading keyword. Keywords are case sensitive.
func ClassifyPayload(payload string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(payload), " ")
	if t, ok := eventPrefixes[word]; ok {
		return t
	}
	return EventTypeUnknown
}
