package evaluation

import (
	"fmt"
	"strconv"
	"strings"
)

// compareVersions compares two dotted numeric version strings segment by
// segment, zero-padding the shorter one (so "6" == "6.0.0"). Returns -1, 0
// or 1. A non-numeric segment makes the whole string malformed.
func compareVersions(a, b string) (int, error) {
	segsA, err := parseVersion(a)
	if err != nil {
		return 0, err
	}
	segsB, err := parseVersion(b)
	if err != nil {
		return 0, err
	}

	length := len(segsA)
	if len(segsB) > length {
		length = len(segsB)
	}

	for i := 0; i < length; i++ {
		var valA, valB int
		if i < len(segsA) {
			valA = segsA[i]
		}
		if i < len(segsB) {
			valB = segsB[i]
		}
		if valA < valB {
			return -1, nil
		}
		if valA > valB {
			return 1, nil
		}
	}

	return 0, nil
}

func parseVersion(version string) ([]int, error) {
	trimmed := strings.TrimSpace(version)
	if trimmed == "" {
		return nil, fmt.Errorf("empty version string")
	}

	parts := strings.Split(trimmed, ".")
	segments := make([]int, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.Atoi(part)
		if err != nil || value < 0 {
			return nil, fmt.Errorf("malformed version segment %q in %q", part, version)
		}
		segments = append(segments, value)
	}

	return segments, nil
}
