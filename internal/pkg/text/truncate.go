package text

// Truncate 截断到不超过 max 字节并追加 "..."，只在 rune 边界切分。
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := 0
	for i := range s {
		if i > max {
			break
		}
		cut = i
	}
	return s[:cut] + "..."
}
