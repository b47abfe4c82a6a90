package pose

import "sort"

// IoU returns the intersection-over-union of two boxes, zero when they do
// not overlap.
func IoU(a, b Box) float64 {
	ix1 := a.X1
	if b.X1 > ix1 {
		ix1 = b.X1
	}
	iy1 := a.Y1
	if b.Y1 > iy1 {
		iy1 = b.Y1
	}
	ix2 := a.X2
	if b.X2 < ix2 {
		ix2 = b.X2
	}
	iy2 := a.Y2
	if b.Y2 < iy2 {
		iy2 = b.Y2
	}

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih

	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Suppress is the box deduplication primitive: given candidate boxes and
// their scores, it drops candidates below scoreThreshold and greedily
// suppresses any candidate overlapping a higher-scored survivor by more
// than iouThreshold. Surviving anchor indices are returned ordered by
// descending score, ties broken by lower index.
func Suppress(boxes []Box, scores []float64, scoreThreshold, iouThreshold float64) []int {
	order := make([]int, 0, len(boxes))
	for i := range boxes {
		if scores[i] >= scoreThreshold {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	used := make([]bool, len(boxes))
	keep := make([]int, 0, len(order))
	for oi, i := range order {
		if used[i] {
			continue
		}
		keep = append(keep, i)
		for _, j := range order[oi+1:] {
			if used[j] {
				continue
			}
			if IoU(boxes[i], boxes[j]) > iouThreshold {
				used[j] = true
			}
		}
	}
	return keep
}
