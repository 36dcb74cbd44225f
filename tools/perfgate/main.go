package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type benchmarkBaseline struct {
	NSOp     float64 `json:"ns_op"`
	AllocsOp float64 `json:"allocs_op"`
}

type baselineFile struct {
	Benchmarks map[string]benchmarkBaseline `json:"benchmarks"`
}

type benchmarkResult struct {
	NSOp     float64
	AllocsOp float64
}

func parseBenchOutput(output string) map[string]benchmarkResult {
	results := map[string]benchmarkResult{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Benchmark") {
			continue
		}
		fields := strings.Fields(line)
		// BenchmarkName-8  N  ns/op  B/op  allocs/op
		if len(fields) < 5 {
			continue
		}
		name := fields[0]
		if dash := strings.LastIndex(name, "-"); dash > 0 {
			name = name[:dash]
		}

		nsOp, allocsOp := 0.0, 0.0
		hasNSOp, hasAllocsOp := false, false
		for i := 0; i < len(fields)-1; i++ {
			switch fields[i+1] {
			case "ns/op":
				if parsed, err := strconv.ParseFloat(fields[i], 64); err == nil {
					nsOp, hasNSOp = parsed, true
				}
			case "allocs/op":
				if parsed, err := strconv.ParseFloat(fields[i], 64); err == nil {
					allocsOp, hasAllocsOp = parsed, true
				}
			}
		}
		if hasNSOp && hasAllocsOp && nsOp > 0 {
			results[name] = benchmarkResult{NSOp: nsOp, AllocsOp: allocsOp}
		}
	}
	return results
}

func readBaseline(path string) (baselineFile, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is explicitly provided by local CI/operator input
	if err != nil {
		return baselineFile{}, fmt.Errorf("perf baseline read failed: %w", err)
	}
	baseline := baselineFile{}
	if err := json.Unmarshal(data, &baseline); err != nil {
		return baselineFile{}, fmt.Errorf("perf baseline parse failed: %w", err)
	}
	if len(baseline.Benchmarks) == 0 {
		return baselineFile{}, fmt.Errorf("perf baseline %s is empty", path)
	}
	return baseline, nil
}

func writeBaseline(path string, results map[string]benchmarkResult) error {
	baseline := baselineFile{Benchmarks: make(map[string]benchmarkBaseline, len(results))}
	for name, result := range results {
		baseline.Benchmarks[name] = benchmarkBaseline{NSOp: result.NSOp, AllocsOp: result.AllocsOp}
	}
	data, err := json.MarshalIndent(baseline, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func benchPattern(baseline baselineFile) string {
	names := make([]string, 0, len(baseline.Benchmarks))
	for name := range baseline.Benchmarks {
		names = append(names, regexp.QuoteMeta(name))
	}
	sort.Strings(names)
	return "^(" + strings.Join(names, "|") + ")$"
}

// compare returns the sorted regressions of results against baseline.
func compare(baseline baselineFile, results map[string]benchmarkResult, maxRegression float64) []string {
	failures := []string{}
	for name, expected := range baseline.Benchmarks {
		actual, ok := results[name]
		if !ok {
			failures = append(failures, fmt.Sprintf("missing benchmark result: %s", name))
			continue
		}

		maxNS := expected.NSOp * (1.0 + (maxRegression / 100.0))
		if actual.NSOp > maxNS {
			failures = append(failures, fmt.Sprintf("%s ns/op regression: baseline %.2f, actual %.2f, max %.2f", name, expected.NSOp, actual.NSOp, maxNS))
		}

		maxAllocs := expected.AllocsOp * (1.0 + (maxRegression / 100.0))
		if actual.AllocsOp > maxAllocs {
			failures = append(failures, fmt.Sprintf("%s allocs/op regression: baseline %.2f, actual %.2f, max %.2f", name, expected.AllocsOp, actual.AllocsOp, maxAllocs))
		}
	}
	sort.Strings(failures)
	return failures
}

func runBenchmarks(packages []string, pattern string, benchtime string) (string, error) {
	args := append([]string{"test"}, packages...)
	args = append(args, "-run", "^$", "-bench", pattern, "-benchmem", "-count=1", "-benchtime="+benchtime)
	command := exec.Command("go", args...) // #nosec G204 -- arguments are passed without shell expansion
	output, err := command.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("benchmark command failed: %w", err)
	}
	return string(output), nil
}

func printVerdict(out io.Writer, failures []string) bool {
	if len(failures) == 0 {
		fmt.Fprintln(out, "perf gate: PASS")
		return true
	}
	fmt.Fprintln(out, "perf gate: FAIL")
	for _, failure := range failures {
		fmt.Fprintf(out, "- %s\n", failure)
	}
	return false
}

func main() {
	baselinePath := flag.String("baseline", "tools/perf_baseline.json", "path to benchmark baseline JSON")
	packageList := flag.String("packages", "./stomp ./game", "space-separated package paths for benchmarks")
	benchtime := flag.String("benchtime", "1s", "go test benchmark duration")
	maxRegression := flag.Float64("max-regression", 10.0, "max allowed regression percentage")
	update := flag.Bool("update", false, "run every benchmark and rewrite the baseline")
	flag.Parse()

	packages := strings.Fields(*packageList)
	if *update {
		output, err := runBenchmarks(packages, ".", *benchtime)
		fmt.Print(output)
		if err == nil {
			err = writeBaseline(*baselinePath, parseBenchOutput(output))
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	baseline, err := readBaseline(*baselinePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	output, err := runBenchmarks(packages, benchPattern(baseline), *benchtime)
	fmt.Print(output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if !printVerdict(os.Stdout, compare(baseline, parseBenchOutput(output), *maxRegression)) {
		os.Exit(2)
	}
}
