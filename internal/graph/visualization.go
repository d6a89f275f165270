package graph

import (
	"fmt"
	"sort"
	"strings"
)

// DrawMermaid renders the graph as a Mermaid flowchart. Conditional edges
// are dotted and labelled with their route.
func (g *Graph) DrawMermaid() string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	sb.WriteString("    START([\"START\"])\n")
	sb.WriteString(fmt.Sprintf("    START --> %s\n", mermaidID(g.def.Entry)))

	ids := g.NodeIDs()
	for _, id := range ids {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", mermaidID(id), id))
	}
	sb.WriteString("    END([\"END\"])\n")

	for _, from := range ids {
		edge := g.def.Edges[from]
		if edge.Kind == EdgeStatic {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", mermaidID(from), mermaidID(edge.To)))
			continue
		}
		labels := make([]string, 0, len(edge.Routes))
		for label := range edge.Routes {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			sb.WriteString(fmt.Sprintf("    %s -.->|%s| %s\n", mermaidID(from), label, mermaidID(edge.Routes[label])))
		}
	}
	return sb.String()
}

func mermaidID(id string) string {
	if id == END {
		return "END"
	}
	return strings.NewReplacer(" ", "_", "-", "_").Replace(id)
}
