package game

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// WriteSummary renders stats as the plain-text game summary.
func WriteSummary(writer io.Writer, teamA string, teamB string, stats UserStats) error {
	buffered := bufio.NewWriter(writer)

	fmt.Fprintf(buffered, "%s vs %s\n", teamA, teamB)
	fmt.Fprintln(buffered, "Game stats:")
	writeStats(buffered, "General stats:", stats.GeneralStats)
	writeStats(buffered, teamA+" stats:", stats.TeamAStats)
	writeStats(buffered, teamB+" stats:", stats.TeamBStats)

	fmt.Fprintln(buffered, "Game event reports:")
	events := append([]GameEvent(nil), stats.Events...)
	sort.SliceStable(events, func(left, right int) bool {
		return events[left].Time < events[right].Time
	})
	for _, event := range events {
		fmt.Fprintf(buffered, "%d - %s:\n\n%s\n\n", event.Time, event.Name, event.Description)
	}

	return buffered.Flush()
}

func writeStats(writer io.Writer, title string, values map[string]string) {
	fmt.Fprintln(writer, title)
	for _, key := range sortedKeys(values) {
		fmt.Fprintf(writer, "%s : %s\n", key, values[key])
	}
}

// WriteSummaryFile writes the summary to path, creating parent directories
// and replacing any existing file.
func WriteSummaryFile(path string, teamA string, teamB string, stats UserStats) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create summary directory: %w", err)
		}
	}

	file, err := os.Create(path) // #nosec G304 -- path comes from the operator's summary command
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	if err := WriteSummary(file, teamA, teamB, stats); err != nil {
		_ = file.Close()
		return fmt.Errorf("write summary: %w", err)
	}
	return file.Close()
}
