// Package pipeline chains mapping, materialization, resolution, enrichment,
// and execution into the full patch-derivation flow.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/enrich"
	"github.com/surgetech/surge-agent/pkg/jsonutil"
	"github.com/surgetech/surge-agent/pkg/llm"
	"github.com/surgetech/surge-agent/pkg/mapper"
	"github.com/surgetech/surge-agent/pkg/mirror"
	"github.com/surgetech/surge-agent/pkg/resolver"
)

// Pipeline derives enriched patches from task descriptions and tabular rows.
type Pipeline struct {
	client   llm.Client
	mapper   *mapper.Mapper
	resolver *resolver.Resolver
	logger   *zap.Logger
}

// New builds a pipeline. The resolver client should point at a
// higher-capability model than the mapping client.
func New(mappingClient, resolverClient llm.Client, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		client:   mappingClient,
		mapper:   mapper.New(mappingClient, logger),
		resolver: resolver.New(resolverClient, nil, logger),
		logger:   logger.Named("pipeline"),
	}
}

// PatchRequest describes one derivation batch.
type PatchRequest struct {
	AssetType       assets.AssetType
	Operation       assets.Operation
	TaskDescription string
	Rows            []map[string]string

	// PreviousVATCode is set by the deprecation flow so the replacement
	// entry can be bound to the organization of the deprecated one.
	PreviousVATCode string
}

// CreatePatches runs the derivation chain: derive a mapping from the first
// row, validate it against the operation's invariants, materialize it across
// all rows, resolve deferred typed values, and shape the execution form.
func (p *Pipeline) CreatePatches(ctx context.Context, req PatchRequest) ([]assets.ResolvedPatch, error) {
	spec, ok := assets.SpecFor(req.AssetType)
	if !ok {
		return nil, fmt.Errorf("no asset spec found for asset type: %s", req.AssetType)
	}
	if len(req.Rows) == 0 {
		return nil, fmt.Errorf("no input data found for the operation")
	}

	p.logger.Info("creating asset mapping",
		zap.String("asset_type", string(req.AssetType)),
		zap.String("operation", string(req.Operation)))

	mapping, err := p.mapper.DeriveMapping(ctx, spec, req.Rows[0], req.Operation)
	if err != nil {
		return nil, err
	}

	switch req.Operation {
	case assets.OperationUpdate:
		if len(mapping.Predicate) != len(spec.PredicateFields) {
			return nil, fmt.Errorf("mapping must include all predicate fields %v, got %d",
				spec.PredicateFieldNames(), len(mapping.Predicate))
		}
		if len(mapping.Patch) == 0 {
			return nil, fmt.Errorf("mapping must include at least one patch field")
		}
		if err := p.mapper.SkipNonUpdatable(ctx, &mapping, req.TaskDescription, req.Rows[0]); err != nil {
			return nil, err
		}
	case assets.OperationDelete:
		if len(mapping.Predicate) != len(spec.PredicateFields) {
			return nil, fmt.Errorf("mapping must include all predicate fields %v, got %d",
				spec.PredicateFieldNames(), len(mapping.Predicate))
		}
	}

	patches, err := mapper.Materialize(mapping, req.Rows, p.logger)
	if err != nil {
		return nil, err
	}

	if err := p.resolver.Resolve(ctx, patches); err != nil {
		return nil, err
	}

	return shapeForExecution(patches, req.Operation)
}

// shapeForExecution merges the predicate into the body for creates and
// unflattens dot-path keys into nested records. Deprecation creates a
// replacement record, so it merges like a create.
func shapeForExecution(patches []assets.AssetPatch, operation assets.Operation) ([]assets.ResolvedPatch, error) {
	resolved := make([]assets.ResolvedPatch, 0, len(patches))
	for i, p := range patches {
		flat, err := p.Patch.Literals()
		if err != nil {
			return nil, fmt.Errorf("patch %d: %w", i, err)
		}

		if operation == assets.OperationCreate || operation == assets.OperationDeprecation {
			predicate, err := p.Predicate.Literals()
			if err != nil {
				return nil, fmt.Errorf("patch %d predicate: %w", i, err)
			}
			for k, v := range predicate {
				flat[k] = v
			}
		}

		resolved = append(resolved, assets.ResolvedPatch{
			Predicate: p.Predicate,
			Body:      jsonutil.Unflatten(flat),
		})
	}
	return resolved, nil
}

// EnvSession bundles the per-environment collaborators enrichment needs. It
// has an explicit lifecycle scoped to one environment loop iteration.
type EnvSession struct {
	Mirror mirror.Finder
	Close  func(ctx context.Context) error
}

// SessionFactory opens a session against one environment.
type SessionFactory func(ctx context.Context, env assets.Environment) (*EnvSession, error)

// CreateEnrichedPatches derives patches once, clones them per environment,
// and applies the registered enricher with an environment-scoped session.
func (p *Pipeline) CreateEnrichedPatches(ctx context.Context, req PatchRequest, environments []assets.Environment, sessions SessionFactory) (map[assets.Environment][]assets.ResolvedPatch, error) {
	patches, err := p.CreatePatches(ctx, req)
	if err != nil {
		return nil, err
	}

	byEnv := make(map[assets.Environment][]assets.ResolvedPatch, len(environments))
	for _, env := range environments {
		cloned := make([]assets.ResolvedPatch, len(patches))
		for i, patch := range patches {
			cloned[i] = patch.Clone()
		}
		byEnv[env] = cloned
	}

	enricher, ok := enrich.For(req.AssetType, req.Operation)
	if !ok {
		return byEnv, nil
	}

	for _, env := range environments {
		if err := p.enrichEnv(ctx, env, byEnv[env], enricher, req, sessions); err != nil {
			return nil, err
		}
	}

	p.logger.Info("patches ready",
		zap.String("asset_type", string(req.AssetType)),
		zap.String("operation", string(req.Operation)),
		zap.Int("patches", len(patches)),
		zap.Int("environments", len(environments)))

	return byEnv, nil
}

func (p *Pipeline) enrichEnv(ctx context.Context, env assets.Environment, patches []assets.ResolvedPatch, enricher enrich.Func, req PatchRequest, sessions SessionFactory) error {
	session, err := sessions(ctx, env)
	if err != nil {
		return fmt.Errorf("open session for %s: %w", env, err)
	}
	defer func() {
		if session.Close != nil {
			if err := session.Close(ctx); err != nil {
				p.logger.Warn("closing environment session", zap.String("env", string(env)), zap.Error(err))
			}
		}
	}()

	ec := &enrich.Context{
		Mirror:          session.Mirror,
		Logger:          p.logger,
		PreviousVATCode: req.PreviousVATCode,
	}

	p.logger.Info("enriching patches",
		zap.String("env", string(env)),
		zap.String("asset_type", string(req.AssetType)),
		zap.Int("patches", len(patches)))

	for i := range patches {
		if err := enricher(ctx, ec, &patches[i]); err != nil {
			return fmt.Errorf("enrich patch %d in %s: %w", i, env, err)
		}
	}
	return nil
}
