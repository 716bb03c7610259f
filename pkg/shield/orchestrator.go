// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package shield

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/promptshield/pkg/heuristics"
	"github.com/teradata-labs/promptshield/pkg/language"
	"github.com/teradata-labs/promptshield/pkg/ml"
	"github.com/teradata-labs/promptshield/pkg/observability"
	"github.com/teradata-labs/promptshield/pkg/patterns"
	"github.com/teradata-labs/promptshield/pkg/semantic"
	"github.com/teradata-labs/promptshield/pkg/types"
)

// orchestrator runs the detection pipeline for one request. The facade
// depends on this narrow interface so the fatal-error policy can be tested.
type orchestrator interface {
	run(ctx context.Context, req *types.AnalysisRequest, warnings []string, analysisID string) (*types.AnalysisResult, error)
}

// pipeline is the production orchestrator: L0 language gate, L1 patterns,
// L2 heuristics, L3 ML, L4 semantic, then weighted aggregation.
type pipeline struct {
	opts     Options
	filter   *language.Filter
	patterns *patterns.Layer
	heur     *heuristics.Layer
	mlLayer  *ml.Layer
	semLayer *semantic.Layer
	logger   *zap.Logger
	tracer   observability.Tracer
}

// layerSpans maps layer names to their span names.
var layerSpans = map[types.LayerName]string{
	types.LayerLanguageFilter:   observability.SpanLanguageFilter,
	types.LayerPatternMatching:  observability.SpanPatternMatching,
	types.LayerHeuristics:       observability.SpanHeuristics,
	types.LayerMLClassification: observability.SpanMLClassification,
	types.LayerSemanticAnalysis: observability.SpanSemanticAnalysis,
}

// evaluate runs one layer under a span, recovering a panic into an
// error-marked result so the pipeline continues.
func (p *pipeline) evaluate(ctx context.Context, layer types.LayerName, eval func(context.Context) *types.LayerResult) (result *types.LayerResult) {
	sctx, span := p.tracer.StartSpan(ctx, layerSpans[layer])
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("detection layer panicked",
				zap.String("layer", string(layer)),
				zap.Any("panic", r))
			result = &types.LayerResult{
				Layer:    layer,
				Executed: true,
				Data: map[string]interface{}{
					types.DataKeyError: fmt.Sprintf("panic: %v", r),
				},
			}
		}
		span.SetAttribute(observability.AttrLayerName, string(layer))
		span.SetAttribute(observability.AttrLayerConfidence, result.Confidence)
		p.tracer.EndSpan(span)
	}()
	return eval(sctx)
}

func (p *pipeline) run(ctx context.Context, req *types.AnalysisRequest, warnings []string, analysisID string) (*types.AnalysisResult, error) {
	start := time.Now()
	breakdown := &types.DetectionBreakdown{}

	// L0: language gate, only when a detector is wired in.
	if p.filter != nil && p.opts.Language.Enabled {
		var action types.FilterAction
		result := p.evaluate(ctx, types.LayerLanguageFilter, func(sctx context.Context) *types.LayerResult {
			r, a := p.filter.Evaluate(sctx, req.Prompt)
			action = a
			return r
		})
		breakdown.SetResult(result)
		if action == types.ActionBlock {
			return p.finalize(analysisID, start, breakdown,
				string(types.LayerLanguageFilter), result.Confidence, true, p.filter.BlockThreat()), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// L1: pattern matching.
	var patternResult *types.LayerResult
	if p.opts.PatternMatching.Enabled {
		patternResult = p.evaluate(ctx, types.LayerPatternMatching, func(sctx context.Context) *types.LayerResult {
			return p.patterns.Evaluate(sctx, req.Prompt)
		})
		breakdown.SetResult(patternResult)
		if patternResult.IsThreat && patternResult.Confidence >= p.opts.PatternMatching.EarlyExitThreshold {
			return p.finalize(analysisID, start, breakdown,
				string(types.LayerPatternMatching), patternResult.Confidence, true,
				p.buildThreat(patternResult.Confidence, breakdown)), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// L2: heuristics, with L1's result in context.
	var heurResult *types.LayerResult
	if p.opts.Heuristics.Enabled {
		hctx := &types.HeuristicContext{
			Prompt:                     req.Prompt,
			SystemPrompt:               req.SystemPrompt,
			PatternResult:              patternResult,
			ValidationWarnings:         warnings,
			Sensitivity:                p.opts.Heuristics.Sensitivity,
			DirectiveWordThreshold:     p.opts.Heuristics.DirectiveWordThreshold,
			PunctuationRatioThreshold:  p.opts.Heuristics.PunctuationRatioThreshold,
			AlphanumericRatioThreshold: p.opts.Heuristics.AlphanumericRatioThreshold,
			DomainExclusions:           p.opts.Heuristics.DomainExclusions,
		}
		heurResult = p.evaluate(ctx, types.LayerHeuristics, func(sctx context.Context) *types.LayerResult {
			return p.heur.Evaluate(sctx, hctx)
		})
		breakdown.SetResult(heurResult)
		if heurResult.Definitive {
			var threat *types.ThreatInfo
			if heurResult.IsThreat {
				threat = p.buildThreat(heurResult.Confidence, breakdown)
			}
			return p.finalize(analysisID, start, breakdown,
				string(types.LayerHeuristics), heurResult.Confidence, heurResult.IsThreat, threat), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// L3: ML classification, gated on the combined earlier confidence so
	// cheap layers can spare the inference cost.
	if p.opts.ML.Enabled && p.mlLayer != nil && p.mlGatePasses(patternResult, heurResult) {
		mlResult := p.evaluate(ctx, types.LayerMLClassification, func(sctx context.Context) *types.LayerResult {
			return p.mlLayer.Evaluate(sctx, req.Prompt)
		})
		breakdown.SetResult(mlResult)
		if mlResult.IsThreat && mlResult.Confidence >= p.opts.ML.Threshold {
			return p.finalize(analysisID, start, breakdown,
				string(types.LayerMLClassification), mlResult.Confidence, true,
				p.buildThreat(mlResult.Confidence, breakdown)), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// L4: semantic analysis, opt-in only.
	if p.opts.SemanticAnalysis.Enabled && p.semLayer != nil {
		semResult := p.evaluate(ctx, types.LayerSemanticAnalysis, func(sctx context.Context) *types.LayerResult {
			return p.semLayer.Evaluate(sctx, req.Prompt)
		})
		breakdown.SetResult(semResult)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	confidence := p.aggregate(breakdown)
	isThreat := confidence >= p.opts.ThreatThreshold
	var threat *types.ThreatInfo
	if isThreat {
		threat = p.buildThreat(confidence, breakdown)
	}
	return p.finalize(analysisID, start, breakdown,
		types.DecisionAggregated, confidence, isThreat, threat), nil
}

// mlGatePasses implements the inference-saving gate: the mean of the pattern
// and heuristic confidences must reach half the ML threshold.
func (p *pipeline) mlGatePasses(patternResult, heurResult *types.LayerResult) bool {
	var l1, l2 float64
	if patternResult != nil {
		l1 = patternResult.Confidence
	}
	if heurResult != nil {
		l2 = heurResult.Confidence
	}
	return (l1+l2)/2 >= p.opts.ML.Threshold*0.5
}

func (p *pipeline) finalize(analysisID string, start time.Time, breakdown *types.DetectionBreakdown,
	decision string, confidence float64, isThreat bool, threat *types.ThreatInfo) *types.AnalysisResult {
	if !isThreat {
		threat = nil
	}
	result := &types.AnalysisResult{
		AnalysisID:    analysisID,
		IsThreat:      isThreat,
		Confidence:    types.Clamp01(confidence),
		Threat:        threat,
		DecisionLayer: decision,
		Duration:      time.Since(start),
		Timestamp:     time.Now().UTC(),
	}
	if p.opts.IncludeBreakdown {
		result.Breakdown = breakdown
	}
	return result
}

// aggregate combines the executed weighted layers into one confidence.
// Weights renormalise over executed layers only; a failed layer contributes
// zero confidence to the mean, pulling it toward safe.
func (p *pipeline) aggregate(breakdown *types.DetectionBreakdown) float64 {
	weights := map[types.LayerName]float64{
		types.LayerPatternMatching:  p.opts.Aggregation.PatternMatchingWeight,
		types.LayerHeuristics:       p.opts.Aggregation.HeuristicsWeight,
		types.LayerMLClassification: p.opts.Aggregation.MLClassificationWeight,
		types.LayerSemanticAnalysis: p.opts.Aggregation.SemanticAnalysisWeight,
	}

	var sum, total float64
	for layer, weight := range weights {
		r := breakdown.Result(layer)
		if r == nil || !r.Executed || weight == 0 {
			continue
		}
		sum += weight * r.Confidence
		total += weight
	}
	if total == 0 {
		return 0
	}
	return types.Clamp01(sum / total)
}

// buildThreat assembles the ThreatInfo for a threat verdict from whatever
// the executed layers reported.
func (p *pipeline) buildThreat(confidence float64, breakdown *types.DetectionBreakdown) *types.ThreatInfo {
	threat := &types.ThreatInfo{
		OWASPCategory: types.DefaultOWASPCategory,
		ThreatType:    "Prompt Injection",
		UserMessage:   "Your request could not be processed due to security concerns. Please rephrase and try again.",
		Severity:      types.SeverityFromConfidence(confidence),
	}

	var detail []string
	for _, layer := range types.PipelineOrder {
		r := breakdown.Result(layer)
		if r == nil || !r.Executed || !r.IsThreat {
			continue
		}
		threat.DetectionSources = append(threat.DetectionSources, layer)
		detail = append(detail, fmt.Sprintf("%s (confidence %.2f)", layer, r.Confidence))
	}
	// An aggregated verdict can cross the threshold without any single
	// layer voting threat; attribute it to the strongest executed layer.
	if len(threat.DetectionSources) == 0 {
		if strongest := strongestLayer(breakdown); strongest != "" {
			threat.DetectionSources = []types.LayerName{strongest}
			detail = append(detail, fmt.Sprintf("aggregated verdict led by %s", strongest))
		}
	}

	if pr := breakdown.PatternMatching; pr != nil {
		if matched, ok := pr.Data[patterns.DataKeyMatchedPatterns].([]string); ok {
			threat.MatchedPatterns = matched
		}
		if owasp, ok := pr.Data[patterns.DataKeyOWASPCategory].(string); ok && owasp != "" {
			threat.OWASPCategory = owasp
		}
	}
	if hr := breakdown.Heuristics; hr != nil {
		if signals, ok := hr.Data[heuristics.DataKeyTopSignals].([]types.Signal); ok {
			for _, s := range signals {
				detail = append(detail, fmt.Sprintf("signal %s (%.2f)", s.Name, s.Contribution))
			}
		}
	}
	if sr := breakdown.SemanticAnalysis; sr != nil {
		if tt, ok := sr.Data[semantic.DataKeyThreatType].(string); ok && tt != "" {
			threat.ThreatType = tt
		}
		if expl, ok := sr.Data[semantic.DataKeyExplanation].(string); ok && expl != "" {
			detail = append(detail, expl)
		}
	}

	threat.Explanation = fmt.Sprintf("potential prompt injection detected by %d layer(s): %s",
		len(threat.DetectionSources), joinDetail(detail))
	return threat
}

func strongestLayer(breakdown *types.DetectionBreakdown) types.LayerName {
	var best types.LayerName
	bestConf := -1.0
	for _, layer := range types.PipelineOrder {
		r := breakdown.Result(layer)
		if r == nil || !r.Executed {
			continue
		}
		if r.Confidence > bestConf {
			bestConf = r.Confidence
			best = layer
		}
	}
	return best
}

func joinDetail(parts []string) string {
	if len(parts) == 0 {
		return "no layer detail available"
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "; " + p
	}
	return out
}
