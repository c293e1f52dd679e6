package symbolic

import (
	"regexp"
	"strings"
)

var (
	stepLine   = regexp.MustCompile(`^Step \d+:`)
	identifier = regexp.MustCompile(`[A-Za-z][A-Za-z0-9]*`)
	digits     = regexp.MustCompile(`[0-9]+`)
)

// ParseSteps returns the lines of output that start with a "Step N:"
// marker, in order. Output without markers yields an empty slice.
func ParseSteps(output string) []string {
	_, steps := splitSteps(output)
	return steps
}

// splitSteps separates step lines from the rest of the engine output. The
// rest, trimmed, is the primary result; when only step lines were printed
// the whole output is the result.
func splitSteps(output string) (result string, steps []string) {
	steps = []string{}
	var rest []string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if stepLine.MatchString(trimmed) {
			steps = append(steps, trimmed)
			continue
		}
		rest = append(rest, line)
	}
	result = strings.TrimSpace(strings.Join(rest, "\n"))
	if result == "" {
		result = strings.TrimSpace(output)
	}
	return result, steps
}

// ExtractVariables lists the variable names in expr in first-occurrence
// order. Digits are stripped so x1, x2 collapse to x. Identifiers directly
// followed by "(" are function names and are skipped: diff(sin(x), x) gives
// [x], not [diff sin x] as a plain identifier scan would. Callers that want
// the called names as well must scan for them separately.
func ExtractVariables(expr string) []string {
	vars := []string{}
	seen := map[string]bool{}
	for _, loc := range identifier.FindAllStringIndex(expr, -1) {
		if strings.HasPrefix(strings.TrimLeft(expr[loc[1]:], " \t"), "(") {
			continue
		}
		name := digits.ReplaceAllString(expr[loc[0]:loc[1]], "")
		if seen[name] {
			continue
		}
		seen[name] = true
		vars = append(vars, name)
	}
	return vars
}
