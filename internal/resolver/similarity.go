package resolver

// editDistance is the Levenshtein distance between a and b, counted in runes.
func editDistance(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Similarity is 1 - editDistance(a, b) / max(len(a), len(b)), in [0, 1].
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	return similarity([]rune(a), []rune(b))
}

func similarity(a, b []rune) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return float64(longest-editDistance(a, b)) / float64(longest)
}
