package gridfile

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/segmentgridgo/internal/ctxlog"
	"github.com/specialistvlad/segmentgridgo/internal/forest"
	"github.com/specialistvlad/segmentgridgo/internal/search"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// isExprDefined reports whether an optional attribute was written in the
// file. gohcl fills omitted hcl.Expression fields with a zero-width
// placeholder expression, so a nil check is not enough.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	defined := r.End.Byte > r.Start.Byte
	ctxlog.FromContext(ctx).Debug("Checking if grid attribute was defined.",
		"attribute", attrName, "hcl_range", r.String(), "is_defined", defined)
	return defined
}

func (g *gridBlock) translate(ctx context.Context) (search.Grid, error) {
	var grid search.Grid
	var err error
	if grid.MaxDepth, err = depthList(ctx, g.MaxDepth, forest.ParamMaxDepth); err != nil {
		return grid, err
	}
	if grid.MaxFeatures, err = list[string](ctx, g.MaxFeatures, forest.ParamMaxFeatures, cty.String); err != nil {
		return grid, err
	}
	if grid.MinSamplesLeaf, err = list[int](ctx, g.MinSamplesLeaf, forest.ParamMinSamplesLeaf, cty.Number); err != nil {
		return grid, err
	}
	if grid.MinSamplesSplit, err = list[int](ctx, g.MinSamplesSplit, forest.ParamMinSamplesSplit, cty.Number); err != nil {
		return grid, err
	}
	if grid.NEstimators, err = list[int](ctx, g.NEstimators, forest.ParamNEstimators, cty.Number); err != nil {
		return grid, err
	}
	if _, err := grid.Configurations(); err != nil && grid.Size() > 0 {
		return grid, fmt.Errorf("%w: grid: %v", ErrInvalidFile, err)
	}
	return grid, nil
}

// values evaluates expr as a list of elem. It returns nil when the attribute
// is absent and a non-nil, possibly empty, slice otherwise.
func values(ctx context.Context, expr hcl.Expression, name string, elem cty.Type) ([]cty.Value, error) {
	if !isExprDefined(ctx, expr, name) {
		return nil, nil
	}
	v, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: grid.%s: %s", ErrInvalidFile, name, diags.Error())
	}
	if v.IsNull() {
		return nil, fmt.Errorf("%w: grid.%s must be a list, not null", ErrInvalidFile, name)
	}
	lv, err := convert.Convert(v, cty.List(elem))
	if err != nil {
		return nil, fmt.Errorf("%w: grid.%s: %v", ErrInvalidFile, name, err)
	}
	out := make([]cty.Value, 0, lv.LengthInt())
	for it := lv.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		out = append(out, ev)
	}
	return out, nil
}

func list[T any](ctx context.Context, expr hcl.Expression, name string, elem cty.Type) ([]T, error) {
	vals, err := values(ctx, expr, name, elem)
	if vals == nil || err != nil {
		return nil, err
	}
	out := make([]T, len(vals))
	for i, v := range vals {
		if v.IsNull() {
			return nil, fmt.Errorf("%w: grid.%s[%d] must not be null", ErrInvalidFile, name, i)
		}
		if err := gocty.FromCtyValue(v, &out[i]); err != nil {
			return nil, fmt.Errorf("%w: grid.%s[%d]: %v", ErrInvalidFile, name, i, err)
		}
	}
	return out, nil
}

// depthList decodes max_depth, where null stands for unlimited depth.
func depthList(ctx context.Context, expr hcl.Expression, name string) ([]*int, error) {
	vals, err := values(ctx, expr, name, cty.Number)
	if vals == nil || err != nil {
		return nil, err
	}
	out := make([]*int, len(vals))
	for i, v := range vals {
		if v.IsNull() {
			continue
		}
		var d int
		if err := gocty.FromCtyValue(v, &d); err != nil {
			return nil, fmt.Errorf("%w: grid.%s[%d]: %v", ErrInvalidFile, name, i, err)
		}
		out[i] = &d
	}
	return out, nil
}
