package query

import (
    "strconv"
    "strings"
)

// Limits bounds history and listing sizes.
type Limits struct {
    Default int
    Max     int
}

// DefaultLimits is 10 entries by default and never more than 100.
var DefaultLimits = Limits{Default: 10, Max: 100}

// Clamp maps n into [1, Max]; non-positive values fall back to Default.
func (l Limits) Clamp(n int) int {
    if n <= 0 { return l.Default }
    if n > l.Max { return l.Max }
    return n
}

// Parse clamps a raw query parameter. Missing or non-numeric input yields Default.
func (l Limits) Parse(raw string) int {
    n, err := strconv.Atoi(strings.TrimSpace(raw))
    if err != nil { return l.Default }
    return l.Clamp(n)
}
