package trainer

import (
	"context"
	"fmt"

	"github.com/specialistvlad/segmentgridgo/internal/forest"
	"github.com/specialistvlad/segmentgridgo/internal/search"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxMessageSize bounds feature matrices sent in one call.
const maxMessageSize = 256 << 20

// Client calls a remote trainer.
type Client struct {
	conn grpc.ClientConnInterface
	own  *grpc.ClientConn
}

// Dial connects to the trainer at addr.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxMessageSize), grpc.MaxCallSendMsgSize(maxMessageSize)),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, own: conn}, nil
}

// NewClient wraps an existing connection. Close leaves conn open.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close shuts down a connection opened by Dial.
func (c *Client) Close() error {
	if c.own == nil {
		return nil
	}
	return c.own.Close()
}

// Factory returns a search.Factory whose estimators train remotely.
func (c *Client) Factory() search.Factory {
	return func(p forest.Params, seed int64) (search.Estimator, error) {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return &estimator{client: c, params: p, seed: seed}, nil
	}
}

// Fit trains a model remotely and returns its id.
func (c *Client) Fit(ctx context.Context, p forest.Params, seed int64, X [][]float64, y []int) (string, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldParams:   encodeParams(p.Values()),
		fieldSeed:     structpb.NewNumberValue(float64(seed)),
		fieldFeatures: encodeMatrix(X),
		fieldLabels:   encodeLabels(y),
	}}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, FitMethod, req, resp); err != nil {
		return "", fmt.Errorf("fit rpc: %w", err)
	}
	id := resp.Fields[fieldModelID].GetStringValue()
	if id == "" {
		return "", fmt.Errorf("fit rpc: response has no %s", fieldModelID)
	}
	return id, nil
}

// Predict labels X with a remotely trained model.
func (c *Client) Predict(ctx context.Context, modelID string, X [][]float64) ([]int, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldModelID:  structpb.NewStringValue(modelID),
		fieldFeatures: encodeMatrix(X),
	}}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, PredictMethod, req, resp); err != nil {
		return nil, fmt.Errorf("predict rpc: %w", err)
	}
	labels, err := decodeLabels(resp.Fields[fieldLabels])
	if err != nil {
		return nil, fmt.Errorf("predict rpc: %w", err)
	}
	if len(labels) != len(X) {
		return nil, fmt.Errorf("predict rpc: %d labels for %d rows", len(labels), len(X))
	}
	return labels, nil
}

type estimator struct {
	client *Client
	params forest.Params
	seed   int64
}

func (e *estimator) Fit(ctx context.Context, X [][]float64, y []int) (search.Model, error) {
	id, err := e.client.Fit(ctx, e.params, e.seed, X, y)
	if err != nil {
		return nil, err
	}
	return &model{client: e.client, id: id}, nil
}

type model struct {
	client *Client
	id     string
}

func (m *model) Predict(ctx context.Context, X [][]float64) ([]int, error) {
	return m.client.Predict(ctx, m.id, X)
}
