package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	seqRe   = regexp.MustCompile(`[-#]\s*(\d+)\s*$`)
	spaceRe = regexp.MustCompile(`\s+`)
	slugRe  = regexp.MustCompile(`[^a-z0-9]+`)
)

// ParsedName holds the structured data parsed from a table's display name.
type ParsedName struct {
	Hall string
	Seq  int
}

// ParseName splits a table name such as "Hall A-3" or "Terrace #12" into the hall
// it belongs to and its number inside that hall. A name without a number is a
// standalone table: Hall is empty and Seq is 0.
func ParseName(raw string) (ParsedName, error) {
	s := strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
	if s == "" {
		return ParsedName{}, fmt.Errorf("unable to parse empty table name")
	}

	loc := seqRe.FindStringSubmatchIndex(s)
	if loc == nil {
		return ParsedName{}, nil
	}
	seq, err := strconv.Atoi(s[loc[2]:loc[3]])
	if err != nil {
		return ParsedName{}, fmt.Errorf("unable to parse table number from name %q: %w", raw, err)
	}
	hall := strings.TrimSpace(s[:loc[0]])
	if hall == "" {
		return ParsedName{}, fmt.Errorf("unable to parse hall from name: %q", raw)
	}
	if seq == 0 {
		return ParsedName{}, fmt.Errorf("table number must be positive in name: %q", raw)
	}
	return ParsedName{Hall: hall, Seq: seq}, nil
}

// Slug turns a display name into a stable id: "Hall A-3" becomes "hall-a-3".
func Slug(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
