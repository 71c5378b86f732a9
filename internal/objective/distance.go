package objective

import (
	"fmt"
	"math"
	"sort"
)

// hausdorff is the mean, over foreground labels present in the ground truth,
// of the undirected Hausdorff distance between the predicted and true voxel
// sets of that label. Labels only found in the prediction do not contribute;
// a truth label the prediction misses entirely leaves the distance undefined.
func hausdorff(predicted, truth Volume) (float64, error) {
	pSets := pointsByLabel(predicted)
	tSets := pointsByLabel(truth)
	if len(tSets) == 0 {
		return 0, ErrNoPositives
	}

	labels := make([]int, 0, len(tSets))
	for l := range tSets {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	var sum float64
	for _, l := range labels {
		p, ok := pSets[l]
		if !ok {
			return 0, fmt.Errorf("%w: label %d not predicted", ErrNoPositives, l)
		}
		t := tSets[l]
		d := math.Max(directed(p, t), directed(t, p))
		sum += d
	}
	return sum / float64(len(labels)), nil
}

func pointsByLabel(v Volume) map[int][][3]float64 {
	sets := make(map[int][][3]float64)
	for i, l := range v.Labels {
		if l == Background {
			continue
		}
		sets[l] = append(sets[l], v.position(i))
	}
	return sets
}

// directed is the directed Hausdorff distance max_a min_b |a-b|. The inner
// loop stops as soon as a point closer than the current maximum is found,
// since that point cannot raise the result.
func directed(a, b [][3]float64) float64 {
	var cmax float64
	for _, pa := range a {
		cmin := math.Inf(1)
		for _, pb := range b {
			d := sqDist(pa, pb)
			if d < cmin {
				cmin = d
			}
			if cmin < cmax {
				break
			}
		}
		if cmin > cmax && !math.IsInf(cmin, 1) {
			cmax = cmin
		}
	}
	return math.Sqrt(cmax)
}

func sqDist(a, b [3]float64) float64 {
	dz, dy, dx := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dz*dz + dy*dy + dx*dx
}
