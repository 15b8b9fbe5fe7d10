// CLAUDE:SUMMARY Transport-agnostic endpoints for normalize, batch normalize, corrections and reference stats.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/combine-registry/pkg/engine"
	"github.com/hazyhaar/combine-registry/pkg/kit"
	"github.com/hazyhaar/combine-registry/pkg/match"
)

// MaxBatch bounds the inputs of one batch request.
const MaxBatch = 100

// Shared request/response types used by both HTTP and MCP transports.

type normalizeReq struct {
	Input   string
	Context *match.Context
}

type normalizeResponse struct {
	Input     string         `json:"input"`
	Canonical string         `json:"canonical_input"`
	Results   []match.Result `json:"results"`
}

type batchReq struct {
	Inputs  []string
	Context *match.Context
}

type batchItem struct {
	Input     string         `json:"input"`
	Canonical string         `json:"canonical_input"`
	Results   []match.Result `json:"results,omitempty"`
	Error     *errorBody     `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItem `json:"results"`
}

type correctionReq struct {
	OriginalInput string `json:"original_input"`
	Rejected      string `json:"rejected_canonical,omitempty"`
	Accepted      string `json:"accepted_canonical"`
	Region        string `json:"region,omitempty"`
}

type referenceResponse struct {
	engine.Stats
	Brands []string `json:"brands"`
}

type errorBody struct {
	Error string   `json:"error"`
	Kind  string   `json:"kind,omitempty"`
	Hints []string `json:"hints,omitempty"`
}

// toErrorBody flattens an endpoint error, keeping the hints of a *match.Error.
func toErrorBody(err error) *errorBody {
	body := &errorBody{Error: err.Error()}
	var merr *match.Error
	if errors.As(err, &merr) {
		body.Kind = merr.Kind.Error()
		body.Hints = merr.Hints
	}
	return body
}

type endpoints struct {
	normalize  kit.Endpoint
	batch      kit.Endpoint
	correction kit.Endpoint
	reference  kit.Endpoint
}

func newEndpoints(eng *engine.Engine, logger *slog.Logger) endpoints {
	wrap := func(action string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.RequestID(), kit.Logging(logger, action))(ep)
	}
	return endpoints{
		normalize:  wrap("normalize", normalizeEndpoint(eng)),
		batch:      wrap("normalize_batch", batchEndpoint(eng)),
		correction: wrap("record_correction", correctionEndpoint(eng)),
		reference:  wrap("reference", referenceEndpoint(eng)),
	}
}

func normalizeEndpoint(eng *engine.Engine) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*normalizeReq)
		results, err := eng.Normalize(req.Input, req.Context)
		if err != nil {
			return nil, err
		}
		return normalizeResponse{
			Input:     req.Input,
			Canonical: eng.Snapshot().Canon().Canonicalize(req.Input),
			Results:   results,
		}, nil
	}
}

func batchEndpoint(eng *engine.Engine) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*batchReq)
		if len(req.Inputs) == 0 {
			return nil, fmt.Errorf("%w: inputs array is empty", match.ErrInvalidInput)
		}
		if len(req.Inputs) > MaxBatch {
			return nil, fmt.Errorf("%w: too many inputs (max %d, got %d)", match.ErrInvalidInput, MaxBatch, len(req.Inputs))
		}
		canon := eng.Snapshot().Canon()
		items := make([]batchItem, len(req.Inputs))
		for i, in := range req.Inputs {
			items[i] = batchItem{Input: in, Canonical: canon.Canonicalize(in)}
			results, err := eng.Normalize(in, req.Context)
			if err != nil {
				items[i].Error = toErrorBody(err)
				continue
			}
			items[i].Results = results
		}
		return batchResponse{Results: items}, nil
	}
}

func correctionEndpoint(eng *engine.Engine) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(*correctionReq)
		return eng.RecordCorrection(ctx, req.OriginalInput, req.Rejected, req.Accepted, req.Region)
	}
}

func referenceEndpoint(eng *engine.Engine) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		snap := eng.Snapshot()
		seen := make(map[string]bool)
		var brands []string
		for _, e := range snap.Entries() {
			if !seen[e.Brand] {
				seen[e.Brand] = true
				brands = append(brands, e.Brand)
			}
		}
		return referenceResponse{Stats: eng.Stats(), Brands: brands}, nil
	}
}
