package cover

import (
	"strconv"
	"strings"
)

// DeviceID is a hub device identifier in canonical string form.
type DeviceID string

// NormalizeID returns the canonical form of a raw hub identifier.
// Surrounding space is trimmed and integers lose any leading zeros or
// sign, so "0042", " 42" and 42 all map to "42".
func NormalizeID(raw string) DeviceID {
	s := strings.TrimSpace(raw)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return DeviceID(strconv.FormatUint(n, 10))
	}
	return DeviceID(s)
}

func (id DeviceID) String() string { return string(id) }

// Name is the logical cover name used as the topic segment on the bus.
type Name string

func (n Name) String() string { return string(n) }

// topicReserved holds the characters a single MQTT topic level cannot carry.
const topicReserved = "/+#\x00"

// ValidTopicLevel reports whether n can stand for the "+" level of a topic
// pattern and be matched back from a concrete topic.
func (n Name) ValidTopicLevel() bool {
	return n != "" && !strings.ContainsAny(string(n), topicReserved)
}

// Position is a cover position, 0 closed and 100 open.
// Values outside that range are passed through untouched.
type Position int

const (
	PositionClosed Position = 0
	PositionOpen   Position = 100
)

// Command is a bus command payload. Matching is case-sensitive.
type Command string

const (
	CommandOpen  Command = "OPEN"
	CommandClose Command = "CLOSE"
	CommandStop  Command = "STOP"
)

// Target returns the position a command drives the cover to. STOP and
// unrecognized commands have no target and report false.
func (c Command) Target() (Position, bool) {
	switch c {
	case CommandOpen:
		return PositionOpen, true
	case CommandClose:
		return PositionClosed, true
	default:
		return 0, false
	}
}

// Mapping pairs a hub device with its cover name.
type Mapping struct {
	ID   DeviceID
	Name Name
}
