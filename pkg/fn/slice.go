package fn

// Map applies f to each element.
func Map[T, U any](items []T, f func(T) U) []U {
	out := make([]U, len(items))
	for i, v := range items {
		out[i] = f(v)
	}
	return out
}

// Filter returns elements where pred is true.
func Filter[T any](items []T, pred func(T) bool) []T {
	var out []T
	for _, v := range items {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}

// UniqueBy returns elements with unique keys, preserving order. The first
// element seen for a key wins.
func UniqueBy[T any, K comparable](items []T, key func(T) K) []T {
	seen := make(map[K]struct{}, len(items))
	var out []T
	for _, v := range items {
		k := key(v)
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// Concat flattens batches into one slice, preserving order.
func Concat[T any](batches ...[]T) []T {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	out := make([]T, 0, n)
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

// CountBy counts items per key.
func CountBy[T any, K comparable](items []T, key func(T) K) map[K]int {
	out := make(map[K]int)
	for _, v := range items {
		out[key(v)]++
	}
	return out
}
