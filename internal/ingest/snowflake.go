package ingest

// snowflakeLess orders ids by creation time. Snowflakes are decimal strings
// whose numeric value encodes the timestamp, so a shorter string is always
// smaller and equal lengths compare lexically.
func snowflakeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
