package validate

import (
	"strings"

	"github.com/ppiankov/ricedx/internal/model"
)

// checkCycles reports circular rule chains. They are legal: each rule fires
// at most once per run, so a cycle only ever contributes one round of evidence.
func checkCycles(rb *model.RuleBase, result *Result) {
	edges := make(map[string][]string)
	var nodes []string
	known := make(map[string]bool)
	addNode := func(id string) {
		if !known[id] {
			known[id] = true
			nodes = append(nodes, id)
		}
	}

	for _, r := range rb.Rules {
		if r.Consequent == "" {
			continue
		}
		for _, a := range r.Antecedents {
			if a == "" {
				continue
			}
			addNode(a)
			edges[a] = append(edges[a], r.Consequent)
		}
		addNode(r.Consequent)
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(nodes))
	reported := make(map[string]bool)
	var stack []string

	var visit func(n string)
	visit = func(n string) {
		color[n] = gray
		stack = append(stack, n)

		for _, next := range edges[n] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				if !reported[next] {
					reported[next] = true
					result.add(SeverityInfo, "", next, "circular rule chain: %s", cyclePath(stack, next))
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[n] = black
	}

	for _, n := range nodes {
		if color[n] == white {
			visit(n)
		}
	}
}

func cyclePath(stack []string, start string) string {
	for i, n := range stack {
		if n == start {
			path := append(append([]string(nil), stack[i:]...), start)
			return strings.Join(path, " -> ")
		}
	}
	return start
}
