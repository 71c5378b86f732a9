package objective

import "sort"

type counts struct {
	predicted, truth, both int
}

// tally counts foreground voxels per label; labels are returned sorted so the
// floating point summation order is fixed.
func tally(predicted, truth Volume) ([]int, map[int]*counts) {
	byLabel := make(map[int]*counts)
	get := func(l int) *counts {
		c, ok := byLabel[l]
		if !ok {
			c = &counts{}
			byLabel[l] = c
		}
		return c
	}
	for i, p := range predicted.Labels {
		t := truth.Labels[i]
		if p != Background {
			get(p).predicted++
		}
		if t != Background {
			get(t).truth++
		}
		if p == t && p != Background {
			get(p).both++
		}
	}
	labels := make([]int, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels, byLabel
}

func meanOverLabels(predicted, truth Volume, f func(c *counts) float64) (float64, error) {
	labels, byLabel := tally(predicted, truth)
	if len(labels) == 0 {
		return 0, ErrNoPositives
	}
	var sum float64
	for _, l := range labels {
		sum += f(byLabel[l])
	}
	return sum / float64(len(labels)), nil
}

// dice is the mean volumetric overlap 2|P∩T|/(|P|+|T|) over foreground labels
// present in either volume.
func dice(predicted, truth Volume) (float64, error) {
	return meanOverLabels(predicted, truth, func(c *counts) float64 {
		return 2 * float64(c.both) / float64(c.predicted+c.truth)
	})
}

// jaccard is the mean |P∩T|/|P∪T| over foreground labels.
func jaccard(predicted, truth Volume) (float64, error) {
	return meanOverLabels(predicted, truth, func(c *counts) float64 {
		return float64(c.both) / float64(c.predicted+c.truth-c.both)
	})
}
