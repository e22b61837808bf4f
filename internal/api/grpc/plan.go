package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/partwise/partwise/internal/config"
	perrors "github.com/partwise/partwise/internal/errors"
	"github.com/partwise/partwise/internal/manifest"
	"github.com/partwise/partwise/internal/observability"
	"github.com/partwise/partwise/internal/planner"
	"github.com/partwise/partwise/internal/storage"
)

// planRequest is the decoded form of a Plan request struct.
type planRequest struct {
	Tables []config.TableConfig `json:"tables"`
	// DryRun plans without recording or publishing.
	DryRun bool `json:"dry_run"`
}

// PlanServer implements PlanService.
type PlanServer struct {
	planner *planner.Planner
	catalog manifest.Catalog
	storage storage.ObjectStorage
	stats   *observability.PlanStats
}

var _ PlanServiceServer = (*PlanServer)(nil)

// NewPlanServer creates a plan server reading live partitioning from source.
func NewPlanServer(
	source planner.StrategySource,
	catalog manifest.Catalog,
	store storage.ObjectStorage,
	opts ...planner.Option,
) *PlanServer {
	return &PlanServer{
		planner: planner.New(source, opts...),
		catalog: catalog,
		storage: store,
		stats:   observability.NewPlanStats(24 * time.Hour),
	}
}

// Stats returns the per-table outcomes of the plans served.
func (s *PlanServer) Stats() *observability.PlanStats {
	return s.stats
}

// Plan reconciles the requested tables, records the plan and publishes its
// script.
func (s *PlanServer) Plan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)
	_ = grpc.SetHeader(ctx, metadata.Pairs("x-request-id", requestID))

	var in planRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if len(in.Tables) == 0 {
		return nil, status.Error(codes.InvalidArgument, "tables must not be empty")
	}

	specs := make([]planner.TableSpec, 0, len(in.Tables))
	for i := range in.Tables {
		spec, err := in.Tables[i].Spec()
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "tables[%d]: %v", i, err)
		}
		specs = append(specs, spec)
	}

	plan, err := s.planner.Plan(ctx, specs)
	if err != nil {
		log.Printf("grpc plan [%s]: planning failed: %v", requestID, err)
		return nil, toStatus(err)
	}

	for _, tp := range plan.Tables {
		s.stats.Record(tp.Table.String(), tp.Delta)
	}

	var objectPath string
	if !in.DryRun {
		if objectPath, err = manifest.Publish(ctx, s.catalog, s.storage, plan); err != nil {
			log.Printf("grpc plan [%s]: failed to publish plan %s: %v", requestID, plan.ID, err)
			return nil, toStatus(err)
		}
	}

	out, err := structpb.NewStruct(planFields(plan, objectPath, requestID))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode plan: %v", err)
	}
	return out, nil
}

// GetPlan returns a recorded plan. The request carries "plan_id".
func (s *PlanServer) GetPlan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	planID := req.GetFields()["plan_id"].GetStringValue()
	if planID == "" {
		return nil, status.Error(codes.InvalidArgument, "plan_id is required")
	}
	if _, err := uuid.Parse(planID); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid plan_id %q", planID)
	}

	rec, err := s.catalog.GetPlan(ctx, planID)
	if err != nil {
		return nil, toStatus(err)
	}

	tables := make([]interface{}, 0, len(rec.Tables))
	for _, t := range rec.Tables {
		tables = append(tables, map[string]interface{}{
			"table":         t.Table,
			"delta":         t.Delta,
			"fingerprint":   formatFingerprint(t.Fingerprint),
			"missing_count": t.MissingCount,
		})
	}
	out, err := structpb.NewStruct(map[string]interface{}{
		"plan_id":     rec.PlanID,
		"created_at":  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"object_path": rec.ObjectPath,
		"script":      rec.Script,
		"tables":      tables,
		"request_id":  extractRequestID(ctx),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode plan: %v", err)
	}
	return out, nil
}

// planFields renders a plan as structpb-compatible values.
func planFields(plan *planner.Plan, objectPath, requestID string) map[string]interface{} {
	tables := make([]interface{}, 0, len(plan.Tables))
	for _, tp := range plan.Tables {
		statements := make([]interface{}, len(tp.Statements))
		for i, stmt := range tp.Statements {
			statements[i] = stmt
		}
		tables = append(tables, map[string]interface{}{
			"table":            tp.Table.String(),
			"kind":             string(tp.Kind),
			"delta":            tp.Delta.String(),
			"statements":       statements,
			"missing_count":    len(tp.Missing),
			"fingerprint":      formatFingerprint(tp.Fingerprint),
			"live_fingerprint": formatFingerprint(tp.LiveFingerprint),
		})
	}

	rebuilds := make([]interface{}, 0)
	for _, t := range plan.Rebuilds() {
		rebuilds = append(rebuilds, t.String())
	}

	return map[string]interface{}{
		"plan_id":     plan.ID.String(),
		"created_at":  plan.CreatedAt.UTC().Format(time.RFC3339Nano),
		"has_changes": plan.HasChanges(),
		"rebuilds":    rebuilds,
		"object_path": objectPath,
		"script":      plan.Script(),
		"tables":      tables,
		"request_id":  requestID,
	}
}

// formatFingerprint renders a fingerprint as hex; a struct number is a
// float64 and cannot hold every uint64.
func formatFingerprint(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}

// decodeStruct maps a request struct onto dst through its JSON form.
func decodeStruct(req *structpb.Struct, dst interface{}) error {
	data, err := req.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// toStatus maps errors to gRPC status codes.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	code := codes.Internal
	switch perrors.GetCategory(err) {
	case perrors.ErrCategoryValidation, perrors.ErrCategoryPlan:
		code = codes.InvalidArgument
	case perrors.ErrCategoryCatalog:
		if perrors.GetCode(err) == perrors.CodeIntrospectionFailed {
			code = codes.Unavailable
		} else {
			code = codes.FailedPrecondition
		}
	case perrors.ErrCategoryManifest:
		switch perrors.GetCode(err) {
		case perrors.CodeWriteConflict:
			code = codes.Aborted
		case perrors.CodeDuplicatePlan:
			code = codes.AlreadyExists
		case perrors.CodePlanNotFound:
			code = codes.NotFound
		}
	case perrors.ErrCategoryStorage:
		code = codes.Unavailable
	}
	return status.Error(code, err.Error())
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}
