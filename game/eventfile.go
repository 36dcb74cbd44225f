package game

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Report is the content of an event file.
type Report struct {
	TeamA  string
	TeamB  string
	Events []Event
}

// GameName returns the topic name of the reported game.
func (report Report) GameName() string {
	return Name(report.TeamA, report.TeamB)
}

// Parser turns an event file into a Report.
type Parser interface {
	Parse(path string) (Report, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(path string) (Report, error)

// Parse calls the wrapped function.
func (parse ParserFunc) Parse(path string) (Report, error) { return parse(path) }

// FileParser reads the JSON event files produced for the game feeds.
var FileParser Parser = ParserFunc(ParseFile)

type eventFile struct {
	TeamA  string      `json:"team a"`
	TeamB  string      `json:"team b"`
	Events []eventJSON `json:"events"`
}

type eventJSON struct {
	Name         string                 `json:"event name"`
	Time         json.Number            `json:"time"`
	Description  string                 `json:"description"`
	GameUpdates  map[string]interface{} `json:"general game updates"`
	LegacyGame   map[string]interface{} `json:"game updates"`
	TeamAUpdates map[string]interface{} `json:"team a updates"`
	TeamBUpdates map[string]interface{} `json:"team b updates"`
}

// ParseFile reads and decodes the event file at path.
func ParseFile(path string) (Report, error) {
	file, err := os.Open(path) // #nosec G304 -- path comes from the operator's report command
	if err != nil {
		return Report{}, fmt.Errorf("open event file: %w", err)
	}
	defer file.Close()

	report, err := Decode(file)
	if err != nil {
		return Report{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return report, nil
}

// Decode reads one event file document from reader. Update values of any
// JSON type are kept in their textual form.
func Decode(reader io.Reader) (Report, error) {
	decoder := json.NewDecoder(reader)
	decoder.UseNumber()

	var document eventFile
	if err := decoder.Decode(&document); err != nil {
		return Report{}, err
	}

	report := Report{
		TeamA:  document.TeamA,
		TeamB:  document.TeamB,
		Events: make([]Event, 0, len(document.Events)),
	}
	for _, raw := range document.Events {
		general := raw.GameUpdates
		if general == nil {
			general = raw.LegacyGame
		}
		report.Events = append(report.Events, Event{
			Name:         raw.Name,
			Time:         parseTime(raw.Time),
			Description:  raw.Description,
			GameUpdates:  stringify(general),
			TeamAUpdates: stringify(raw.TeamAUpdates),
			TeamBUpdates: stringify(raw.TeamBUpdates),
		})
	}
	return report, nil
}

func parseTime(value json.Number) int {
	if parsed, err := value.Int64(); err == nil {
		return int(parsed)
	}
	if parsed, err := value.Float64(); err == nil {
		return int(parsed)
	}
	return 0
}

func stringify(values map[string]interface{}) map[string]string {
	result := make(map[string]string, len(values))
	for key, value := range values {
		switch typed := value.(type) {
		case nil:
			result[key] = ""
		case string:
			result[key] = typed
		case bool:
			result[key] = strconv.FormatBool(typed)
		case json.Number:
			result[key] = typed.String()
		default:
			encoded, err := json.Marshal(typed)
			if err != nil {
				result[key] = fmt.Sprint(typed)
				continue
			}
			result[key] = strings.TrimSpace(string(encoded))
		}
	}
	return result
}
