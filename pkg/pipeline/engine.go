package pipeline

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/backend"
	"github.com/surgetech/surge-agent/pkg/jsonutil"
)

// Engine applies execution tasks against the backend.
type Engine struct {
	client    *backend.Client
	refresher *backend.CacheRefresher
	logger    *zap.Logger
}

// NewEngine builds an engine. The refresher may be nil when cache
// invalidation is unavailable.
func NewEngine(client *backend.Client, refresher *backend.CacheRefresher, logger *zap.Logger) *Engine {
	return &Engine{client: client, refresher: refresher, logger: logger.Named("engine")}
}

// RunTasks applies create/update/delete tasks in order. Patches whose
// predicate matches no existing record are skipped with a warning; the batch
// proceeds. After all tasks, and only outside dry-run, the downstream cache
// is refreshed for exactly the set of touched asset types, best-effort.
func (e *Engine) RunTasks(ctx context.Context, env assets.Environment, tasks []assets.ExecutionTask) error {
	if len(tasks) == 0 {
		e.logger.Info("no asset operations to perform")
		return nil
	}

	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", runID), zap.String("env", string(env)))
	logger.Info("starting task run",
		zap.Int("tasks", len(tasks)),
		zap.Bool("dry_run", e.client.DryRun()))

	touched := make(map[assets.AssetType]bool)

	for _, task := range tasks {
		touched[task.AssetType] = true
		logger.Info("processing task",
			zap.String("operation", string(task.Operation)),
			zap.String("asset_type", string(task.AssetType)),
			zap.Int("patches", len(task.Patches)))

		var err error
		switch task.Operation {
		case assets.OperationCreate:
			err = e.runCreate(ctx, task, logger)
		case assets.OperationUpdate:
			err = e.runUpdate(ctx, task, logger)
		case assets.OperationDelete:
			err = e.runDelete(ctx, task, logger)
		default:
			// Deprecation is decomposed upstream into update+create+update
			// and must never reach the engine as a primitive.
			err = fmt.Errorf("unsupported operation: %s", task.Operation)
		}
		if err != nil {
			return fmt.Errorf("task %s %s: %w", task.Operation, task.AssetType, err)
		}
	}

	types := make([]assets.AssetType, 0, len(touched))
	for t := range touched {
		types = append(types, t)
	}

	if !e.client.DryRun() && e.refresher != nil {
		e.refresher.Refresh(ctx, env, types)
	}

	logger.Info("asset operations completed")
	return nil
}

func (e *Engine) runCreate(ctx context.Context, task assets.ExecutionTask, logger *zap.Logger) error {
	bodies := make([]map[string]any, 0, len(task.Patches))
	for _, p := range task.Patches {
		bodies = append(bodies, p.Body)
	}
	if len(bodies) == 0 {
		return nil
	}
	logger.Info("saving batch create", zap.Int("assets", len(bodies)))
	return e.client.SaveBatch(ctx, task.AssetType, bodies)
}

func (e *Engine) runUpdate(ctx context.Context, task assets.ExecutionTask, logger *zap.Logger) error {
	existing, err := e.client.FindAll(ctx, task.AssetType)
	if err != nil {
		return err
	}
	logger.Info("fetched existing assets", zap.Int("count", len(existing)))

	updates := make([]map[string]any, 0, len(task.Patches))
	for _, p := range task.Patches {
		match, ok := e.findMatch(existing, p, task.AssetType, logger)
		if !ok {
			continue
		}
		merged := make(map[string]any, len(match)+len(p.Body))
		for k, v := range match {
			merged[k] = v
		}
		for k, v := range p.Body {
			merged[k] = v
		}
		updates = append(updates, merged)
	}

	if len(updates) == 0 {
		return nil
	}
	logger.Info("saving batch update", zap.Int("assets", len(updates)))
	return e.client.SaveBatch(ctx, task.AssetType, updates)
}

func (e *Engine) runDelete(ctx context.Context, task assets.ExecutionTask, logger *zap.Logger) error {
	existing, err := e.client.FindAll(ctx, task.AssetType)
	if err != nil {
		return err
	}
	logger.Info("fetched existing assets", zap.Int("count", len(existing)))

	idField := assets.IDField(task.AssetType)
	ids := make([]string, 0, len(task.Patches))
	for _, p := range task.Patches {
		match, ok := e.findMatch(existing, p, task.AssetType, logger)
		if !ok {
			continue
		}
		id := fmt.Sprintf("%v", match[idField])
		logger.Info("deleting asset", zap.String("id", id))
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil
	}
	logger.Info("deleting batch", zap.Int("assets", len(ids)))
	return e.client.DeleteBatch(ctx, task.AssetType, ids)
}

// findMatch locates the first existing record whose fields equal every
// predicate entry. Predicate keys may be dot paths into nested records.
func (e *Engine) findMatch(existing []map[string]any, patch assets.ResolvedPatch, assetType assets.AssetType, logger *zap.Logger) (map[string]any, bool) {
	predicate, err := patch.Predicate.Literals()
	if err != nil {
		logger.Warn("predicate not fully resolved, skipping patch",
			zap.String("asset_type", string(assetType)),
			zap.Error(err))
		return nil, false
	}

	for _, record := range existing {
		if predicateMatches(record, predicate) {
			return record, true
		}
	}

	logger.Warn("no matching asset found",
		zap.String("asset_type", string(assetType)),
		zap.Any("predicate", predicate))
	return nil, false
}

// predicateMatches compares with DeepEqual: predicate values may hold
// uncomparable types like arrays, where == would panic.
func predicateMatches(record map[string]any, predicate map[string]any) bool {
	for path, want := range predicate {
		got, ok := jsonutil.LookupPath(record, path)
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
