package bisect

import "math"

// Satisfies is the answer a probe gives about one candidate toolchain.
type Satisfies int

const (
	// Yes means the candidate reproduces the regression.
	Yes Satisfies = iota
	// No means the candidate behaves like the baseline.
	No
	// Unknown means the candidate could not be evaluated, e.g. because its
	// artifacts are gone or it fails to install.
	Unknown
)

func (s Satisfies) String() string {
	switch s {
	case Yes:
		return "Yes"
	case No:
		return "No"
	default:
		return "Unknown"
	}
}

// A Predicate evaluates one candidate. remaining and estimate describe the
// search progress: how many candidates are still in play after this probe and
// roughly how many probes are left.
type Predicate[T any] func(t T, remaining, estimate int) Satisfies

// LeastSatisfying returns the index of the left-most candidate satisfying the
// predicate, assuming candidates are ordered so that every No precedes every
// Yes. The first element is presumed No and the last presumed Yes; both must
// be verified by the caller beforehand.
//
// Unknown answers are tolerated: the contiguous unknown range around a failed
// midpoint is expanded until a decidable candidate is found on either side,
// and excluded from further probing. When only unknowns separate the
// right-most No from the left-most Yes, the left-most Yes is returned.
func LeastSatisfying[T any](candidates []T, predicate Predicate[T]) int {
	cache := make(map[int]Satisfies)
	eval := func(idx, rmNo, lmYes int) Satisfies {
		if r, ok := cache[idx]; ok {
			return r
		}
		span := lmYes - rmNo + 1
		remaining := span / 2
		estimate := int(math.Round(math.Log2(float64(span))))
		r := predicate(candidates[idx], remaining, estimate)
		cache[idx] = r
		return r
	}

	rmNo := 0
	lmYes := len(candidates) - 1
	var unknownRanges [][2]int

	for {
		if rmNo+1 >= lmYes {
			return lmYes
		}
		// If only an unknown range separates the bounds, the left-most yes
		// is the best answer available.
		for _, r := range unknownRanges {
			if rmNo+1 == r[0] && r[1]+1 == lmYes {
				return lmYes
			}
		}

		next := (rmNo + lmYes) / 2
		switch eval(next, rmNo, lmYes) {
		case Yes:
			lmYes = next
		case No:
			rmNo = next
		case Unknown:
			// Walk outward until both edges of the unknown range are
			// decidable (or hit the presumed bounds).
			left := next
			for left > rmNo && eval(left, rmNo, lmYes) == Unknown {
				left--
			}
			right := next
			for right < lmYes && eval(right, rmNo, lmYes) == Unknown {
				right++
			}
			unknownRanges = append(unknownRanges, [2]int{left + 1, right - 1})

			if left > rmNo && eval(left, rmNo, lmYes) == Yes {
				lmYes = left
				continue
			}
			if left > rmNo { // No
				rmNo = left
			}
			if right < lmYes {
				switch eval(right, rmNo, lmYes) {
				case Yes:
					lmYes = right
				case No:
					rmNo = right
				}
			}
		}
	}
}
