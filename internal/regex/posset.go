package regex

import (
	"sort"
	"strconv"
	"strings"
)

// PosSet is a sorted set of grammar positions.
type PosSet []int

func NewPosSet(positions ...int) PosSet {
	s := append(PosSet(nil), positions...)
	sort.Ints(s)
	out := s[:0]
	for i, p := range s {
		if i == 0 || p != s[i-1] {
			out = append(out, p)
		}
	}
	return out
}

func (s PosSet) Contains(p int) bool {
	i := sort.SearchInts(s, p)
	return i < len(s) && s[i] == p
}

// Union merges two sets without modifying either.
func (s PosSet) Union(o PosSet) PosSet {
	out := make(PosSet, 0, len(s)+len(o))
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		switch {
		case s[i] < o[j]:
			out = append(out, s[i])
			i++
		case s[i] > o[j]:
			out = append(out, o[j])
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	out = append(out, s[i:]...)
	return append(out, o[j:]...)
}

func (s PosSet) Intersect(o PosSet) PosSet {
	var out PosSet
	i, j := 0, 0
	for i < len(s) && j < len(o) {
		switch {
		case s[i] < o[j]:
			i++
		case s[i] > o[j]:
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	return out
}

// Key is a canonical string form usable as a map key.
func (s PosSet) Key() string {
	parts := make([]string, len(s))
	for i, p := range s {
		parts[i] = strconv.Itoa(p)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (s PosSet) String() string {
	return s.Key()
}
