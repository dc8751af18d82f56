package service

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"lwwdoc/internal/document"
	"lwwdoc/internal/value"
)

type loggingService struct {
	logger  log.Logger
	service Service
}

// NewLoggingService wraps a provided existing
// service with the provided logger.
func NewLoggingService(s Service, logger log.Logger) Service {
	return &loggingService{logger, s}
}

// SetField wraps this service's SetField method
// with added logging capabilities.
func (s *loggingService) SetField(ctx context.Context, req SetFieldRequest) (document.Outcome, error) {

	outcome, err := s.service.SetField(ctx, req)

	logger := log.With(s.logger,
		"method", "SetField",
		"doc", req.ID,
		"field", req.Field,
		"writer", req.WriterID,
	)

	switch {
	case err != nil:
		level.Info(logger).Log("msg", "failed to set field", "err", err)
	case outcome.IsCollision():
		level.Warn(logger).Log(
			"msg", "conflicting writes share timestamp and writer",
			"timestamp", req.Timestamp,
			"outcome", outcome,
		)
	default:
		level.Debug(logger).Log("outcome", outcome)
	}

	return outcome, err
}

func (s *loggingService) GetField(ctx context.Context, id, field string) (value.Value, bool) {
	return s.service.GetField(ctx, id, field)
}

func (s *loggingService) Export(ctx context.Context, id string) (map[string]any, bool) {
	return s.service.Export(ctx, id)
}

func (s *loggingService) Snapshot(ctx context.Context, id string, since uint64) (*document.Document, bool) {
	return s.service.Snapshot(ctx, id, since)
}

// Merge wraps this service's Merge method
// with added logging capabilities.
func (s *loggingService) Merge(ctx context.Context, doc *document.Document) (document.MergeResult, error) {

	res, err := s.service.Merge(ctx, doc)

	if err != nil {
		level.Info(s.logger).Log(
			"method", "Merge",
			"msg", "failed to merge snapshot",
			"err", err,
		)
		return res, err
	}

	logger := log.With(s.logger,
		"method", "Merge",
		"doc", doc.ID(),
		"applied", res.Applied,
	)

	if res.Collisions > 0 {
		level.Warn(logger).Log(
			"msg", "merge resolved conflicting writes sharing timestamp and writer",
			"collisions", res.Collisions,
		)
	} else {
		level.Debug(logger).Log()
	}

	return res, nil
}

func (s *loggingService) IDs(ctx context.Context) []string {
	return s.service.IDs(ctx)
}
