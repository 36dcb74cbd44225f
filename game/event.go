// Package game holds the per-game aggregation model: the structured event
// body exchanged on game topics, the event-file parser used by report, the
// concurrent aggregation store, and the summary writer.
package game

import (
	"sort"
	"strconv"
	"strings"
)

// Body field and section labels.
const (
	fieldUser      = "user"
	fieldTeamA     = "team a"
	fieldTeamB     = "team b"
	fieldEventName = "event name"
	fieldTime      = "time"

	sectionGeneral     = "general game updates:"
	sectionGeneralAlt  = "game updates:"
	sectionTeamA       = "team a updates:"
	sectionTeamB       = "team b updates:"
	sectionDescription = "description:"
)

// Event is one reported game event with the stat updates it carries.
type Event struct {
	Name         string
	Time         int
	Description  string
	GameUpdates  map[string]string
	TeamAUpdates map[string]string
	TeamBUpdates map[string]string
}

// GameEvent is the part of an event kept in a user's history.
type GameEvent struct {
	Name        string
	Time        int
	Description string
}

// Record returns the history entry of the event.
func (event Event) Record() GameEvent {
	return GameEvent{Name: event.Name, Time: event.Time, Description: event.Description}
}

// EventBody is a decoded message body.
type EventBody struct {
	User  string
	TeamA string
	TeamB string
	Event Event
}

// Name joins two team names into the game (and topic) name.
func Name(teamA string, teamB string) string {
	return teamA + "_" + teamB
}

// FormatEventBody renders the body sent in SEND frames. Update keys are sorted.
func FormatEventBody(user string, teamA string, teamB string, event Event) string {
	var builder strings.Builder
	writeField := func(key string, value string) {
		builder.WriteString(key)
		builder.WriteString(": ")
		builder.WriteString(value)
		builder.WriteByte('\n')
	}
	writeSection := func(header string, updates map[string]string) {
		builder.WriteString(header)
		builder.WriteByte('\n')
		for _, key := range sortedKeys(updates) {
			writeField(key, updates[key])
		}
	}

	writeField(fieldUser, user)
	writeField(fieldTeamA, teamA)
	writeField(fieldTeamB, teamB)
	writeField(fieldEventName, event.Name)
	writeField(fieldTime, strconv.Itoa(event.Time))
	writeSection(sectionGeneral, event.GameUpdates)
	writeSection(sectionTeamA, event.TeamAUpdates)
	writeSection(sectionTeamB, event.TeamBUpdates)
	builder.WriteString(sectionDescription)
	builder.WriteByte('\n')
	builder.WriteString(event.Description)
	return builder.String()
}

type bodySection int

const (
	bodyHeader bodySection = iota
	bodyGeneral
	bodyTeamA
	bodyTeamB
	bodyDescription
)

// ParseEventBody decodes a body line by line. It never fails: lines without a
// colon are skipped and a non-numeric time leaves Time at zero.
func ParseEventBody(raw string) EventBody {
	body := EventBody{
		Event: Event{
			GameUpdates:  make(map[string]string),
			TeamAUpdates: make(map[string]string),
			TeamBUpdates: make(map[string]string),
		},
	}

	section := bodyHeader
	var description []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if section == bodyDescription {
			description = append(description, line)
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		switch strings.ToLower(trimmed) {
		case sectionGeneral, sectionGeneralAlt:
			section = bodyGeneral
			continue
		case sectionTeamA:
			section = bodyTeamA
			continue
		case sectionTeamB:
			section = bodyTeamB
			continue
		case sectionDescription:
			section = bodyDescription
			continue
		}

		key, value, found := strings.Cut(trimmed, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch section {
		case bodyHeader:
			body.setField(key, value)
		case bodyGeneral:
			body.Event.GameUpdates[key] = value
		case bodyTeamA:
			body.Event.TeamAUpdates[key] = value
		case bodyTeamB:
			body.Event.TeamBUpdates[key] = value
		}
	}

	body.Event.Description = strings.Trim(strings.Join(description, "\n"), "\n")
	return body
}

func (body *EventBody) setField(key string, value string) {
	switch key {
	case fieldUser:
		body.User = value
	case fieldTeamA:
		body.TeamA = value
	case fieldTeamB:
		body.TeamB = value
	case fieldEventName:
		body.Event.Name = value
	case fieldTime:
		if parsed, err := strconv.Atoi(value); err == nil {
			body.Event.Time = parsed
		}
	}
}

// BodyUser extracts the user line of a body without decoding the rest.
// Only the header block is searched; it ends at the first section label.
func BodyUser(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch strings.ToLower(trimmed) {
		case sectionGeneral, sectionGeneralAlt, sectionTeamA, sectionTeamB, sectionDescription:
			return ""
		}
		key, value, found := strings.Cut(trimmed, ":")
		if found && strings.TrimSpace(key) == fieldUser {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
