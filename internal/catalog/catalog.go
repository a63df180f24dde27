// Package catalog owns the monitoring-node reference list: the fixed,
// sorted set of metering-point identifiers the forecast synthesizer draws
// from.
package catalog

import "sort"

// defaultNodes is the embedded catalog used when the config file does not
// supply one. Identifiers follow the dispatcher's PS-number scheme.
var defaultNodes = []string{
	"PS000112", "PS000147", "PS000183", "PS000209", "PS000231", "PS000256",
	"PS000278", "PS000301", "PS000334", "PS000352", "PS000389", "PS000404",
	"PS000427", "PS000455", "PS000473", "PS000490", "PS000518", "PS000533",
	"PS000561", "PS000587", "PS000612", "PS000648", "PS000665", "PS000691",
	"PS000707", "PS000722", "PS000746", "PS000769", "PS000781", "PS000803",
	"PS000826", "PS000842", "PS000867", "PS000881", "PS000895", "PS000899",
}

// Nodes returns the catalog, sorted and deduplicated. When override is
// empty the embedded default applies. The returned slice is always a fresh
// copy: the forecast synthesizer indexes into it and must not observe
// mutation.
func Nodes(override []string) []string {
	src := override
	if len(src) == 0 {
		src = defaultNodes
	}

	seen := make(map[string]struct{}, len(src))
	nodes := make([]string, 0, len(src))
	for _, id := range src {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	return nodes
}
