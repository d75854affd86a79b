package wire

import (
	"strconv"
	"strings"
)

// FieldDiff is the decoded state of one field in an update line.
// Value is only meaningful when Changed is true; a nil Value is null.
type FieldDiff struct {
	Changed bool
	Value   *string
}

// DecodeUpdate expands the pipe-separated values of a U frame into exactly
// nFields diffs (index 0 is field position 1).
func DecodeUpdate(values string, nFields int) ([]FieldDiff, error) {
	if nFields <= 0 {
		return nil, malformed(values, "update for subscription with %d fields", nFields)
	}

	diffs := make([]FieldDiff, nFields)
	pos := 0
	for _, tok := range strings.Split(values, "|") {
		if pos >= nFields {
			return nil, malformed(values, "more than %d fields", nFields)
		}

		switch {
		case tok == "":
			pos++

		case tok == "#":
			diffs[pos] = FieldDiff{Changed: true}
			pos++

		case tok == "$":
			empty := ""
			diffs[pos] = FieldDiff{Changed: true, Value: &empty}
			pos++

		case tok[0] == '^':
			n, err := strconv.Atoi(tok[1:])
			if err != nil || n <= 0 || !isDigits(tok[1:]) {
				return nil, malformed(values, "bad run length %q", tok)
			}
			if pos+n > nFields {
				return nil, malformed(values, "run length %d overflows %d fields", n, nFields)
			}
			pos += n

		default:
			s, err := DecodeValue(tok)
			if err != nil {
				return nil, malformed(values, "field %d: %v", pos+1, err)
			}
			diffs[pos] = FieldDiff{Changed: true, Value: &s}
			pos++
		}
	}

	if pos != nFields {
		return nil, malformed(values, "got %d fields, want %d", pos, nFields)
	}
	return diffs, nil
}

// ApplyDiff returns a new field map: prev with every changed position
// overwritten. Unchanged positions keep their previous state, including
// the absence of any value. prev is not modified.
func ApplyDiff(prev map[int]*string, diffs []FieldDiff) map[int]*string {
	next := make(map[int]*string, len(diffs))
	for pos, v := range prev {
		next[pos] = v
	}
	for i, d := range diffs {
		if d.Changed {
			next[i+1] = d.Value
		}
	}
	return next
}

// ChangedPositions lists the 1-based positions marked changed.
func ChangedPositions(diffs []FieldDiff) []int {
	var out []int
	for i, d := range diffs {
		if d.Changed {
			out = append(out, i+1)
		}
	}
	return out
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
