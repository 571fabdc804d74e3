package logging

// Sanitize strips control characters from wire- or UI-derived strings before
// they reach the log, so a hostile payload cannot forge log entries.
func Sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			out = append(out, ' ')
		case r < 32:
			// drop other control characters
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
