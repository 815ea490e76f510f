package panel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
)

// AnchorKind identifies which entity an HTML-comment anchor names.
type AnchorKind string

const (
	KindPlan AnchorKind = "plan"
	KindStep AnchorKind = "step"
	KindEVR  AnchorKind = "evr"
)

var anchorRe = regexp.MustCompile(`<!--\s*(plan|step|evr):([A-Za-z0-9_-]+)\s*-->`)

// ordinalRe matches a leading ordinal path ("1", "1.2", "1.2.1") before a
// checkbox marker, per the checkbox line grammar.
var ordinalRe = regexp.MustCompile(`^\s*(\d+(?:\.\d+)*)\.?\s*\[`)

// Anchor is one HTML-comment anchor found in a section, with its line.
type Anchor struct {
	Kind AnchorKind
	ID   string
	Line int
}

// OrdinalPath is a numeric path ("1", "1.2") found before a checkbox.
type OrdinalPath struct {
	Path  string
	Depth int // number of dot-separated segments
	Line  int
}

// Warning is a duplicate-anchor or similar non-fatal anomaly.
type Warning struct {
	Message string
	Line    int
}

// ScanAnchors finds every HTML-comment anchor and ordinal path in the given
// section lines. Duplicate anchor ids are recorded as a Warning; the first
// occurrence wins and later ones get a synthetic suffix so ids stay unique.
func ScanAnchors(lines []string) (anchors []Anchor, ordinals []OrdinalPath, warnings []Warning) {
	seen := map[string]int{}
	for i, line := range lines {
		if m := anchorRe.FindStringSubmatch(line); m != nil {
			kind := AnchorKind(m[1])
			id := m[2]
			if n, dup := seen[id]; dup {
				warnings = append(warnings, Warning{
					Message: fmt.Sprintf("duplicate anchor id %q", id),
					Line:    i,
				})
				seen[id] = n + 1
				id = fmt.Sprintf("%s-dup%d", id, n)
			} else {
				seen[id] = 1
			}
			anchors = append(anchors, Anchor{Kind: kind, ID: id, Line: i})
		}
		if m := ordinalRe.FindStringSubmatch(line); m != nil {
			path := m[1]
			depth := strings.Count(path, ".") + 1
			ordinals = append(ordinals, OrdinalPath{Path: path, Depth: depth, Line: i})
		}
	}
	return anchors, ordinals, warnings
}

// BestMatch finds the anchor of the given kind nearest to line L within
// ±2 lines: ties prefer the anchor with the
// greater line number (anchors are conventionally emitted just after
// their subject).
func BestMatch(anchors []Anchor, kind AnchorKind, line int) (Anchor, bool) {
	var best Anchor
	found := false
	bestDist := 3 // anything beyond ±2 doesn't qualify
	for _, a := range anchors {
		if a.Kind != kind {
			continue
		}
		dist := a.Line - line
		if dist < 0 {
			dist = -dist
		}
		if dist > 2 {
			continue
		}
		switch {
		case !found:
			best, bestDist, found = a, dist, true
		case dist < bestDist:
			best, bestDist = a, dist
		case dist == bestDist && a.Line > best.Line:
			best = a
		}
	}
	return best, found
}

// OrdinalAt returns the ordinal path recorded for the given line, if any.
func OrdinalAt(ordinals []OrdinalPath, line int) (OrdinalPath, bool) {
	for _, o := range ordinals {
		if o.Line == line {
			return o, true
		}
	}
	return OrdinalPath{}, false
}

var syntheticCounter int64

// Synthesize mints a fallback id when neither an anchor nor an ordinal
// path could be associated with a checkbox line.
func Synthesize(kind AnchorKind, line int) string {
	n := atomic.AddInt64(&syntheticCounter, 1)
	return fmt.Sprintf("%s-line%d-%d", kind, line, n)
}

// ResolveID returns the id of the anchor of the given kind that BestMatch
// associates with a checkbox line, or "" when no anchor matches. It does
// not consult ordinal paths or synthesize ids; callers fall back to
// OrdinalAt and then Synthesize themselves. fromAnchor reports whether an
// anchor matched; fromOrdinal is always false.
func ResolveID(anchors []Anchor, kind AnchorKind, line int) (id string, fromAnchor bool, fromOrdinal bool) {
	if a, ok := BestMatch(anchors, kind, line); ok {
		return a.ID, true, false
	}
	return "", false, false
}

// ParseOrdinalDepth reports the nesting depth (1 = plan level, >1 = step
// level) implied by an ordinal path's dot count.
func ParseOrdinalDepth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, ".") + 1
}

// FormatOrdinal joins the given ordinal parts with dots ("1", "1.2").
func FormatOrdinal(parts ...int) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = strconv.Itoa(p)
	}
	return strings.Join(strs, ".")
}
