package replication

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"lwwdoc/internal/document"
)

// Host is the local side of replication: where snapshots are merged and
// read from.
type Host interface {
	Snapshot(ctx context.Context, id string, since uint64) (*document.Document, bool)
	Merge(ctx context.Context, doc *document.Document) (document.MergeResult, error)
	IDs(ctx context.Context) []string
}

// Server implements the lwwdoc.Replica gRPC service.
type Server struct {
	host   Host
	nodeID string
	logger log.Logger
}

// NewServer creates a new replica server.
func NewServer(host Host, nodeID string, logger log.Logger) *Server {
	return &Server{
		host:   host,
		nodeID: nodeID,
		logger: log.With(logger, "component", "replica-server"),
	}
}

// Push merges a remote snapshot and returns the merged state.
func (s *Server) Push(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := SnapshotFromProto(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if doc.ID() == "" {
		return nil, status.Error(codes.InvalidArgument, "document id cannot be empty")
	}

	res, err := s.host.Merge(ctx, doc)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	level.Debug(s.logger).Log(
		"msg", "merged pushed snapshot",
		"doc", doc.ID(),
		"fields", doc.Len(),
		"applied", res.Applied,
	)

	merged, ok := s.host.Snapshot(ctx, doc.ID(), 0)
	if !ok {
		merged = document.New(doc.ID())
	}
	return SnapshotToProto(merged), nil
}

// Pull returns the registers of a document written after the requested
// timestamp. Unknown documents yield an empty snapshot.
func (s *Server) Pull(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, since, err := pullRequestFromProto(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "document id cannot be empty")
	}

	doc, ok := s.host.Snapshot(ctx, id, since)
	if !ok {
		doc = document.New(id)
	}
	return SnapshotToProto(doc), nil
}
