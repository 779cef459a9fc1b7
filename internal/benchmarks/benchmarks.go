// Package benchmarks holds the list of SAT-COMP 2020 benchmark files hosted
// by the Global Benchmark Database.
package benchmarks

import (
	_ "embed"
	"strings"
)

//go:embed uris.txt
var uris string

// URIs returns the benchmark URIs in their embedded order.
func URIs() []string {
	lines := strings.Split(uris, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		out = append(out, line)
	}

	return out
}
