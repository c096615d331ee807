package sanitize

import "fmt"

const maxComplexityDepth = 10

// Complexity sums string lengths and collection sizes through the payload,
// bounding recursion at ten levels so processing cost stays proportional to
// what the budget allows even for maliciously nested JSON.
func Complexity(value any) int {
	return complexityAt(value, 0)
}

func complexityAt(value any, depth int) int {
	if depth >= maxComplexityDepth {
		return 1
	}

	switch v := value.(type) {
	case string:
		return len(v)
	case map[string]any:
		total := len(v)
		for key, item := range v {
			total += len(key) + complexityAt(item, depth+1)
		}
		return total
	case []any:
		total := len(v)
		for _, item := range v {
			total += complexityAt(item, depth+1)
		}
		return total
	case nil:
		return 0
	default:
		return 1
	}
}

// CheckComplexity rejects payloads whose aggregate complexity exceeds the
// budget.
func CheckComplexity(value any, budget int) error {
	if got := Complexity(value); got > budget {
		return fmt.Errorf("payload complexity %d exceeds budget %d", got, budget)
	}
	return nil
}
