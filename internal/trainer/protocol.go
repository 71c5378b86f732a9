// Package trainer delegates estimator training to a remote service over gRPC.
//
// Messages are google.protobuf.Struct values so the service can be written in
// any language without shared generated code:
//
//	Fit:     {params: {name: string}, seed: number, features: [[number]], labels: [number]} -> {model_id: string}
//	Predict: {model_id: string, features: [[number]]} -> {labels: [number]}
package trainer

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// Service and method names.
const (
	ServiceName   = "segmentgrid.trainer.v1.Trainer"
	FitMethod     = "/" + ServiceName + "/Fit"
	PredictMethod = "/" + ServiceName + "/Predict"
)

// Message field names.
const (
	fieldParams   = "params"
	fieldSeed     = "seed"
	fieldFeatures = "features"
	fieldLabels   = "labels"
	fieldModelID  = "model_id"
)

func encodeMatrix(X [][]float64) *structpb.Value {
	rows := make([]*structpb.Value, len(X))
	for i, row := range X {
		vals := make([]*structpb.Value, len(row))
		for j, v := range row {
			vals[j] = structpb.NewNumberValue(v)
		}
		rows[i] = structpb.NewListValue(&structpb.ListValue{Values: vals})
	}
	return structpb.NewListValue(&structpb.ListValue{Values: rows})
}

func decodeMatrix(v *structpb.Value) ([][]float64, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%s must be a list", fieldFeatures)
	}
	out := make([][]float64, len(list.Values))
	for i, rv := range list.Values {
		row := rv.GetListValue()
		if row == nil {
			return nil, fmt.Errorf("%s[%d] must be a list", fieldFeatures, i)
		}
		out[i] = make([]float64, len(row.Values))
		for j, cell := range row.Values {
			n, ok := cell.Kind.(*structpb.Value_NumberValue)
			if !ok {
				return nil, fmt.Errorf("%s[%d][%d] must be a number", fieldFeatures, i, j)
			}
			out[i][j] = n.NumberValue
		}
	}
	return out, nil
}

func encodeLabels(y []int) *structpb.Value {
	vals := make([]*structpb.Value, len(y))
	for i, label := range y {
		vals[i] = structpb.NewNumberValue(float64(label))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func decodeLabels(v *structpb.Value) ([]int, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%s must be a list", fieldLabels)
	}
	out := make([]int, len(list.Values))
	for i, lv := range list.Values {
		n, ok := lv.Kind.(*structpb.Value_NumberValue)
		if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
			return nil, fmt.Errorf("%s[%d] must be an integer", fieldLabels, i)
		}
		out[i] = int(n.NumberValue)
	}
	return out, nil
}

func encodeParams(values map[string]string) *structpb.Value {
	fields := make(map[string]*structpb.Value, len(values))
	for k, v := range values {
		fields[k] = structpb.NewStringValue(v)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func decodeParams(v *structpb.Value) (map[string]string, error) {
	s := v.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("%s must be an object", fieldParams)
	}
	out := make(map[string]string, len(s.Fields))
	for k, fv := range s.Fields {
		str, ok := fv.Kind.(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%s.%s must be a string", fieldParams, k)
		}
		out[k] = str.StringValue
	}
	return out, nil
}
