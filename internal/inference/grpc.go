package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/ai-detector/internal/logging"
)

// PredictMethod is the full gRPC method name of the analysis RPC. Both
// request and response are google.protobuf.Struct messages carrying the
// same fields as the HTTP contract.
const PredictMethod = "/detector.v1.Detector/Predict"

// GRPCClient calls the analysis service over gRPC.
type GRPCClient struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// DialGRPC returns a ready-to-use client for the analysis service at addr.
func DialGRPC(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (*GRPCClient, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("inference.grpc_dial", "", err)
		logger.Error("failed to dial analysis service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewGRPCClient(conn, logger), conn, nil
}

// NewGRPCClient wraps an existing connection.
func NewGRPCClient(conn grpc.ClientConnInterface, logger *zap.Logger) *GRPCClient {
	return &GRPCClient{conn: conn, logger: logger.Named("inference_grpc")}
}

func (g *GRPCClient) Infer(ctx context.Context, req Request) (*Result, error) {
	fields := map[string]interface{}{
		"image_url":    req.Locator,
		"filename":     req.Filename,
		"detection_id": req.DetectionID,
	}
	if len(req.Data) > 0 {
		fields["image_base64"] = base64.StdEncoding.EncodeToString(req.Data)
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, logging.NewOperationError("inference.grpc_build_request", req.DetectionID, err)
	}

	out := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, PredictMethod, in, out); err != nil {
		wrapped := logging.NewOperationError("inference.grpc_predict", req.DetectionID, err)
		g.logger.Error("analysis call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	raw, err := json.Marshal(out.AsMap())
	if err != nil {
		return nil, logging.NewOperationError("inference.grpc_decode", req.DetectionID, err)
	}
	result, err := decodeResult(raw)
	if err != nil {
		wrapped := logging.NewOperationError("inference.grpc_decode", req.DetectionID, err)
		g.logger.Error("analysis payload rejected", zap.Error(wrapped))
		return nil, wrapped
	}
	return result, nil
}
