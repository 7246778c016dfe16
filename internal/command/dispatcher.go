// Package command is the core-facing request/response surface. Requests
// name a command with loose parameters; responses carry success plus a
// payload or an error message. Validation and lookup failures map to
// success:false and are never fatal to the caller.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"unitmap/internal/cluster"
	"unitmap/internal/ingest"
	"unitmap/internal/relation"
	"unitmap/internal/resolve"
	"unitmap/internal/store"
	"unitmap/internal/unit"
	"unitmap/internal/vm"
)

// Request is one command invocation.
type Request struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response is the uniform command result.
type Response struct {
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Core bundles the collaborators the dispatcher drives.
type Core struct {
	Store          store.Store
	Resolver       *resolve.Resolver
	Executor       *vm.Executor
	Partitioner    *cluster.Partitioner
	Ingester       *ingest.Ingester
	Updater        *relation.Updater
	ClusterBound   int
	UpdateInterval time.Duration
	Logger         *zap.Logger
}

// Dispatcher routes requests to the core components.
type Dispatcher struct {
	core   Core
	logger *zap.Logger
}

func NewDispatcher(core Core) *Dispatcher {
	logger := core.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{core: core, logger: logger}
}

// Dispatch executes one request. Expected failures (validation, unknown
// ids) become success:false responses; only infrastructure failures
// surface as errors in the response as well, wrapped with context.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	payload, err := d.route(ctx, req)
	if err != nil {
		d.logger.Debug("command failed",
			zap.String("command", req.Command),
			zap.Error(err))
		return Response{Success: false, Error: err.Error()}
	}
	return Response{Success: true, Payload: payload}
}

func (d *Dispatcher) route(ctx context.Context, req Request) (any, error) {
	switch req.Command {
	case "get_unit":
		return d.getUnit(ctx, req.Params)
	case "get_cluster":
		return d.getCluster(ctx, req.Params)
	case "get_dependencies":
		return d.getDependencies(ctx, req.Params)
	case "find_units":
		return d.findUnits(ctx, req.Params)
	case "preview_execution":
		return d.previewExecution(ctx, req.Params)
	case "ingest":
		return d.ingest(ctx, req.Params)
	case "partition_clusters":
		return d.partitionClusters(ctx)
	case "start_update":
		return d.startUpdate(req.Params)
	case "stop_update":
		d.core.Updater.Stop()
		return "stopped", nil
	default:
		return nil, &unit.ValidationError{
			Field:  "command",
			Reason: fmt.Sprintf("unknown command %q", req.Command),
		}
	}
}

func (d *Dispatcher) getUnit(ctx context.Context, params map[string]any) (any, error) {
	id, err := stringParam(params, "id")
	if err != nil {
		return nil, err
	}
	return d.core.Store.GetUnit(ctx, id)
}

func (d *Dispatcher) getCluster(ctx context.Context, params map[string]any) (any, error) {
	id, err := stringParam(params, "id")
	if err != nil {
		return nil, err
	}
	units, err := d.core.Store.GetUnitsByCluster(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, unit.NotFoundf("cluster %q", id)
	}
	c := unit.Cluster{ID: id, Name: id, SizeBound: d.core.ClusterBound}
	for _, u := range units {
		c.UnitIDs = append(c.UnitIDs, u.ID)
		c.TotalSize += u.Size()
	}
	return c, nil
}

func (d *Dispatcher) getDependencies(ctx context.Context, params map[string]any) (any, error) {
	id, err := stringParam(params, "id")
	if err != nil {
		return nil, err
	}
	if _, err := d.core.Store.GetUnit(ctx, id); err != nil {
		return nil, err
	}
	dir := unit.DirectionBoth
	if raw, ok := params["direction"].(string); ok && raw != "" {
		switch unit.Direction(raw) {
		case unit.DirectionIn, unit.DirectionOut, unit.DirectionBoth:
			dir = unit.Direction(raw)
		default:
			return nil, &unit.ValidationError{Field: "direction", Reason: "must be in, out, or both"}
		}
	}
	return d.core.Store.GetEdges(ctx, id, dir)
}

func (d *Dispatcher) findUnits(ctx context.Context, params map[string]any) (any, error) {
	units, err := d.core.Store.GetAllUnits(ctx)
	if err != nil {
		return nil, err
	}

	if q, ok := params["query"].(string); ok && q != "" {
		var out []unit.Unit
		for i := range units {
			u := &units[i]
			if containsFold(u.Name, q) || containsFold(u.Code, q) ||
				containsFold(u.Metadata.Description, q) {
				out = append(out, *u)
			}
		}
		return out, nil
	}

	raw, ok := params["filter"].(map[string]any)
	if !ok {
		return nil, &unit.ValidationError{Field: "query", Reason: "query string or filter object required"}
	}
	f, err := FilterFromParams(raw)
	if err != nil {
		return nil, err
	}

	var dependsOn, dependencyOf map[string]bool
	if f.DependsOn != nil {
		dependsOn = make(map[string]bool)
		edges, err := d.core.Store.GetEdges(ctx, *f.DependsOn, unit.DirectionIn)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			dependsOn[e.SourceID] = true
		}
	}
	if f.DependencyOf != nil {
		dependencyOf = make(map[string]bool)
		edges, err := d.core.Store.GetEdges(ctx, *f.DependencyOf, unit.DirectionOut)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			dependencyOf[e.TargetID] = true
		}
	}

	var out []unit.Unit
	for i := range units {
		if f.Matches(&units[i], dependsOn, dependencyOf) {
			out = append(out, units[i])
		}
	}
	return out, nil
}

// PreviewResult is the preview_execution payload. An uncaught execution
// error is captured here rather than failing the command.
type PreviewResult struct {
	Result         any                `json:"result,omitempty"`
	ExecutionError *vm.ExecutionError `json:"execution_error,omitempty"`
	Order          []string           `json:"order"`
	CycleWarnings  []string           `json:"cycle_warnings,omitempty"`
}

func (d *Dispatcher) previewExecution(ctx context.Context, params map[string]any) (any, error) {
	entryID, err := stringParam(params, "entry_point_id")
	if err != nil {
		return nil, err
	}
	var args []any
	if raw, ok := params["args"].([]any); ok {
		args = raw
	}

	bundle, err := d.core.Resolver.Resolve(ctx, []string{entryID})
	if err != nil {
		return nil, err
	}
	entry := bundle.Units[entryID]

	// Shared names attribute to the lowest unit id, matching resolution.
	unitsByName := make(map[string]string, len(bundle.Units))
	for id, u := range bundle.Units {
		if prev, ok := unitsByName[u.Name]; !ok || id < prev {
			unitsByName[u.Name] = id
		}
	}

	out := PreviewResult{Order: bundle.Order, CycleWarnings: bundle.CycleWarnings}
	result, err := d.core.Executor.Run(bundle.Code, unitsByName, entry.Name, args, nil)
	if err != nil {
		var execErr *vm.ExecutionError
		if errors.As(err, &execErr) {
			out.ExecutionError = execErr
			return out, nil
		}
		return nil, err
	}
	out.Result = result
	return out, nil
}

func (d *Dispatcher) ingest(ctx context.Context, params map[string]any) (any, error) {
	path, err := stringParam(params, "path")
	if err != nil {
		return nil, err
	}
	report, err := d.core.Ingester.IngestDir(ctx, path, "")
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", path, err)
	}
	return report, nil
}

func (d *Dispatcher) partitionClusters(ctx context.Context) (any, error) {
	clusters, report, err := d.core.Partitioner.Partition(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"report": report, "clusters": clusters}, nil
}

func (d *Dispatcher) startUpdate(params map[string]any) (any, error) {
	interval := d.core.UpdateInterval
	if raw, ok := params["interval_ms"].(float64); ok && raw > 0 {
		interval = time.Duration(raw) * time.Millisecond
	}
	// the periodic loop outlives the request
	d.core.Updater.Start(context.Background(), interval)
	return "started", nil
}

func stringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", &unit.ValidationError{Field: key, Reason: "required"}
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", &unit.ValidationError{Field: key, Reason: "must be a non-empty string"}
	}
	return s, nil
}
