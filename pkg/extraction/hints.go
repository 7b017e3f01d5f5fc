package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

// maxHintNodes and maxHintChars implement §4.3's "bounded priming" cap: at
// most 200 nodes considered, at most 5000 characters emitted.
const maxHintNodes = 200
const maxHintChars = 5000

// aliasEligibleTypes are the entity types whose aliases are worth spending
// hint budget on; the rest get canonical name only.
var aliasEligibleTypes = map[kstore.EntityType]bool{
	kstore.EntityPerson: true, kstore.EntityOrganization: true, kstore.EntityMedication: true,
	kstore.EntityDiagnosis: true, kstore.EntityMedicalDevice: true,
}

// buildKGHints implements §4.3's KG hints: select the top N nodes by
// mention_count, group by entity type (groups ordered by total mention
// count within the group), and render a prompt-appended hint string capped
// at maxHintChars. Returns "" if the graph is empty.
func buildKGHints(ctx context.Context, store *kstore.Store) (string, error) {
	nodes, err := store.ListAllKGNodes(ctx)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", nil
	}

	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].MentionCount > nodes[j].MentionCount })
	if len(nodes) > maxHintNodes {
		nodes = nodes[:maxHintNodes]
	}

	groups := make(map[kstore.EntityType][]*kstore.KGNode)
	groupTotal := make(map[kstore.EntityType]int)
	for _, n := range nodes {
		groups[n.Type] = append(groups[n.Type], n)
		groupTotal[n.Type] += n.MentionCount
	}

	types := make([]kstore.EntityType, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.SliceStable(types, func(i, j int) bool { return groupTotal[types[i]] > groupTotal[types[j]] })

	var b strings.Builder
	for _, t := range types {
		line := fmt.Sprintf("%s: ", t)
		if b.Len()+len(line) > maxHintChars {
			break
		}
		b.WriteString(line)

		names := make([]string, 0, len(groups[t]))
		for _, n := range groups[t] {
			name := n.CanonicalName
			if aliasEligibleTypes[t] {
				if aliases := decodeAliases(n.AliasesJSON); len(aliases) > 0 {
					name = fmt.Sprintf("%s (aka %s)", name, strings.Join(aliases, ", "))
				}
			}
			addition := name
			if len(names) > 0 {
				addition = ", " + name
			}
			if b.Len()+len(addition) > maxHintChars {
				break
			}
			names = append(names, name)
			b.WriteString(addition)
		}
		b.WriteString("\n")
	}

	out := b.String()
	if len(out) > maxHintChars {
		out = out[:maxHintChars]
	}
	return out, nil
}

func decodeAliases(aliasesJSON string) []string {
	var aliases []string
	_ = json.Unmarshal([]byte(aliasesJSON), &aliases)
	return aliases
}
