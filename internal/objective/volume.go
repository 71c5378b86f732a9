package objective

import "fmt"

// Volume is a set of labelled voxels. Positions come from Coords when
// present, otherwise from unravelling the flat index over Shape (z, y, x),
// otherwise the flat index itself is used as a 1D position.
type Volume struct {
	Labels []int
	Coords [][3]float64
	Shape  [3]int
}

// NewVolume wraps labels without spatial information.
func NewVolume(labels []int) Volume {
	return Volume{Labels: labels}
}

func (v Volume) position(i int) [3]float64 {
	if len(v.Coords) > 0 {
		return v.Coords[i]
	}
	if v.Shape[1] > 0 && v.Shape[2] > 0 {
		plane := v.Shape[1] * v.Shape[2]
		z := i / plane
		y := (i % plane) / v.Shape[2]
		x := i % v.Shape[2]
		return [3]float64{float64(z), float64(y), float64(x)}
	}
	return [3]float64{float64(i), 0, 0}
}

func checkShapes(predicted, truth Volume) error {
	if len(predicted.Labels) != len(truth.Labels) {
		return fmt.Errorf("%w: %d predicted vs %d ground-truth voxels", ErrShapeMismatch, len(predicted.Labels), len(truth.Labels))
	}
	if predicted.Shape != ([3]int{}) && truth.Shape != ([3]int{}) && predicted.Shape != truth.Shape {
		return fmt.Errorf("%w: shape %v vs %v", ErrShapeMismatch, predicted.Shape, truth.Shape)
	}
	for _, v := range []Volume{predicted, truth} {
		if len(v.Coords) > 0 && len(v.Coords) != len(v.Labels) {
			return fmt.Errorf("%w: %d coordinates for %d voxels", ErrShapeMismatch, len(v.Coords), len(v.Labels))
		}
		if v.Shape != ([3]int{}) && v.Shape[0]*v.Shape[1]*v.Shape[2] != len(v.Labels) {
			return fmt.Errorf("%w: shape %v holds %d voxels, got %d", ErrShapeMismatch, v.Shape, v.Shape[0]*v.Shape[1]*v.Shape[2], len(v.Labels))
		}
	}
	return nil
}
