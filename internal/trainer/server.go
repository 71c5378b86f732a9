package trainer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/segmentgridgo/internal/ctxlog"
	"github.com/specialistvlad/segmentgridgo/internal/forest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service is the server side of the trainer protocol.
type Service interface {
	Fit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Service)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Fit", Handler: unaryHandler(FitMethod, Service.Fit)},
		{MethodName: "Predict", Handler: unaryHandler(PredictMethod, Service.Predict)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "segmentgrid/trainer/v1/trainer.proto",
}

func unaryHandler(method string, call func(Service, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Service), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(Service), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Register attaches svc to s.
func Register(s grpc.ServiceRegistrar, svc Service) {
	s.RegisterService(&serviceDesc, svc)
}

// DefaultMaxModels bounds the models a ForestService keeps.
const DefaultMaxModels = 256

// ForestService trains the in-process random forest on behalf of remote
// clients. Models are kept in memory and evicted oldest first.
type ForestService struct {
	mu     sync.Mutex
	models map[string]*forest.Forest
	order  []string
	max    int
}

// NewForestService returns a service keeping at most maxModels models.
func NewForestService(maxModels int) *ForestService {
	if maxModels <= 0 {
		maxModels = DefaultMaxModels
	}
	return &ForestService{models: map[string]*forest.Forest{}, max: maxModels}
}

func (s *ForestService) Fit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	values, err := decodeParams(req.Fields[fieldParams])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	p, err := forest.ParseValues(values)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	X, err := decodeMatrix(req.Fields[fieldFeatures])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	y, err := decodeLabels(req.Fields[fieldLabels])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	c, err := forest.New(p, int64(req.Fields[fieldSeed].GetNumberValue()))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	f, err := c.Fit(ctx, X, y)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}

	id := uuid.NewString()
	s.store(id, f)
	ctxlog.FromContext(ctx).Debug("Model trained.", "model.id", id, "model.params", p.String(), "data.samples", len(X))
	return &structpb.Struct{Fields: map[string]*structpb.Value{fieldModelID: structpb.NewStringValue(id)}}, nil
}

func (s *ForestService) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.Fields[fieldModelID].GetStringValue()
	s.mu.Lock()
	f, ok := s.models[id]
	s.mu.Unlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "model %q not found", id)
	}
	X, err := decodeMatrix(req.Fields[fieldFeatures])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	labels, err := f.Predict(ctx, X)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{fieldLabels: encodeLabels(labels)}}, nil
}

func (s *ForestService) store(id string, f *forest.Forest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[id] = f
	s.order = append(s.order, id)
	for len(s.order) > s.max {
		delete(s.models, s.order[0])
		s.order = s.order[1:]
	}
}

// Len returns the number of models held.
func (s *ForestService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.models)
}

// NewServer returns a gRPC server with svc registered and message limits
// matching Dial.
func NewServer(svc Service, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.MaxRecvMsgSize(maxMessageSize), grpc.MaxSendMsgSize(maxMessageSize)}, opts...)
	s := grpc.NewServer(opts...)
	Register(s, svc)
	return s
}
