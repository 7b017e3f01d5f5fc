package knowledgegraph

import "strings"

// diceCoefficient computes the Sørensen–Dice coefficient between two strings
// over their character bigram sets: 2*|intersection| / (|A|+|B|). Hand-rolled
// rather than pulled from a library: the spec prescribes this exact bigram
// formula, and no example in the corpus ships a general string-similarity
// dependency that implements Dice specifically (see DESIGN.md).
func diceCoefficient(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if a == b {
		return 1.0
	}
	if len(a) < 2 || len(b) < 2 {
		return 0.0
	}

	bigramsA := bigramCounts(a)
	bigramsB := bigramCounts(b)

	var intersection int
	for bg, countA := range bigramsA {
		if countB, ok := bigramsB[bg]; ok {
			if countA < countB {
				intersection += countA
			} else {
				intersection += countB
			}
		}
	}

	totalA := len([]rune(a)) - 1
	totalB := len([]rune(b)) - 1
	if totalA <= 0 || totalB <= 0 {
		return 0.0
	}

	return 2.0 * float64(intersection) / float64(totalA+totalB)
}

func bigramCounts(s string) map[string]int {
	runes := []rune(s)
	counts := make(map[string]int, len(runes))
	for i := 0; i < len(runes)-1; i++ {
		counts[string(runes[i:i+2])]++
	}
	return counts
}
