package types

import (
	"fmt"
	"sort"
)

// VertebraNameForClass maps a detection class id to its anatomical name:
// 0 is C7, 1..12 are T1..T12, 13..17 are L1..L5. Unknown ids get a
// synthetic V{id} name that never matches any curve region, so they are
// carried through but ignored by the measurement engine.
func VertebraNameForClass(clsID int) string {
	switch {
	case clsID == 0:
		return "C7"
	case clsID >= 1 && clsID <= 12:
		return fmt.Sprintf("T%d", clsID)
	case clsID >= 13 && clsID <= 17:
		return fmt.Sprintf("L%d", clsID-12)
	default:
		return fmt.Sprintf("V%d", clsID)
	}
}

// CanonicalOrder lists the known vertebra names cranio-caudally. Every
// scan over a VertebraSet walks this order so tie-breaking is
// deterministic: on equal scores the most cranial vertebra wins.
var CanonicalOrder = []string{
	"C7",
	"T1", "T2", "T3", "T4", "T5", "T6", "T7", "T8", "T9", "T10", "T11", "T12",
	"L1", "L2", "L3", "L4", "L5",
}

// VertebraSet maps anatomical names to vertebrae, at most one per name.
// Duplicate detections are resolved at ingestion (see pkg/detection), so
// consumers can rely on uniqueness.
type VertebraSet map[string]Vertebra

// Add inserts a vertebra, keeping the higher-confidence detection when the
// name is already present. On equal confidence the existing entry wins.
func (s VertebraSet) Add(v Vertebra) {
	if prev, ok := s[v.Name]; ok && prev.Confidence >= v.Confidence {
		return
	}
	s[v.Name] = v
}

// Ordered returns the vertebrae in cranio-caudal order, with any
// synthetic V{id} entries appended in sorted name order.
func (s VertebraSet) Ordered() []Vertebra {
	out := make([]Vertebra, 0, len(s))
	seen := make(map[string]bool, len(s))
	for _, name := range CanonicalOrder {
		if v, ok := s[name]; ok {
			out = append(out, v)
			seen[name] = true
		}
	}
	var rest []string
	for name := range s {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, s[name])
	}
	return out
}
