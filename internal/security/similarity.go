package security

// Similarity 返回 (较长串长度 - 编辑距离) / 较长串长度。
// 阈值是按这个公式调出来的，不要换成其他归一化方式。
func Similarity(a, b string) float64 {
	left := []rune(a)
	right := []rune(b)

	longer, shorter := right, left
	if len(left) > len(right) {
		longer, shorter = left, right
	}
	if len(longer) == 0 {
		return 1.0
	}

	distance := editDistance(longer, shorter)
	return float64(len(longer)-distance) / float64(len(longer))
}

func EditDistance(a, b string) int {
	return editDistance([]rune(a), []rune(b))
}

// editDistance Levenshtein 距离，单行滚动数组
func editDistance(a, b []rune) int {
	costs := make([]int, len(b)+1)
	for j := range costs {
		costs[j] = j
	}

	for i := 1; i <= len(a); i++ {
		diagonal := costs[0]
		costs[0] = i
		for j := 1; j <= len(b); j++ {
			above := costs[j]
			if a[i-1] == b[j-1] {
				costs[j] = diagonal
			} else {
				costs[j] = min(diagonal, above, costs[j-1]) + 1
			}
			diagonal = above
		}
	}
	return costs[len(b)]
}
