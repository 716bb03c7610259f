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

// Package shield is the analyzer facade over the layered prompt injection
// detection pipeline.
package shield

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/promptshield/pkg/observability"
	"github.com/teradata-labs/promptshield/pkg/types"
	"github.com/teradata-labs/promptshield/pkg/validation"
)

// Analyzer is the concurrent-safe entry point. Construct it with a Builder.
type Analyzer struct {
	opts       Options
	validator  *validation.Validator
	pipeline   orchestrator
	dispatcher *dispatcher
	logger     *zap.Logger
	tracer     observability.Tracer
}

// AnalyzeText analyzes a bare prompt with no extra context.
func (a *Analyzer) AnalyzeText(ctx context.Context, prompt string) (*types.AnalysisResult, error) {
	return a.Analyze(ctx, &types.AnalysisRequest{Prompt: prompt})
}

// Analyze validates the request, runs the detection pipeline and applies the
// fail-open/fail-closed policy to analysis failures. Context cancellation is
// always surfaced, never converted by the policy.
func (a *Analyzer) Analyze(ctx context.Context, req *types.AnalysisRequest) (*types.AnalysisResult, error) {
	_, vspan := a.tracer.StartSpan(ctx, observability.SpanValidation)
	validated := a.validator.Validate(req)
	a.tracer.EndSpan(vspan)
	if !validated.Valid {
		return nil, &ValidationError{
			Code:    CodeValidationFailed,
			Message: validated.ErrorMessages(),
		}
	}

	analysisID := uuid.NewString()
	sctx, span := a.tracer.StartSpan(ctx, observability.SpanAnalyze)
	span.SetAttribute(observability.AttrAnalysisID, analysisID)
	span.SetAttribute(observability.AttrPromptLength, len([]rune(req.Prompt)))
	if req.Metadata != nil && req.Metadata.UserID != "" {
		span.SetAttribute(observability.AttrUserID, req.Metadata.UserID)
	}
	defer a.tracer.EndSpan(span)

	a.tracer.RecordMetric(observability.MetricAnalysisTotal, 1, nil)
	a.tracer.RecordMetric(observability.MetricPromptLength, float64(len([]rune(req.Prompt))), nil)
	a.logAnalysisStart(analysisID, req)

	a.dispatcher.analysisStarted(sctx, analysisID, req)

	result, err := a.runPipeline(sctx, req, validated.WarningSignals(), analysisID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		a.tracer.RecordMetric(observability.MetricAnalysisErrors, 1, nil)
		span.SetAttribute(observability.AttrErrorMessage, err.Error())

		if a.opts.OnAnalysisError == FailClosed {
			return nil, &ShieldError{AnalysisID: analysisID, Err: err}
		}

		a.logger.Warn("analysis failed, admitting request per fail-open policy",
			zap.String("analysis_id", analysisID),
			zap.Error(err))
		result = &types.AnalysisResult{
			AnalysisID:    analysisID,
			DecisionLayer: types.DecisionFailOpen,
			Timestamp:     time.Now().UTC(),
		}
		if a.opts.IncludeBreakdown {
			result.Breakdown = &types.DetectionBreakdown{}
		}
	}

	span.SetAttribute(observability.AttrDecisionLayer, result.DecisionLayer)
	span.SetAttribute(observability.AttrThreatDetected, result.IsThreat)
	span.SetAttribute(observability.AttrThreatConfidence, result.Confidence)
	a.tracer.RecordMetric(observability.MetricAnalysisLatency, float64(result.Duration.Milliseconds()), nil)

	if result.IsThreat {
		a.tracer.RecordMetric(observability.MetricThreatsDetected, 1, nil)
		if result.Threat != nil {
			span.SetAttribute(observability.AttrThreatOWASP, result.Threat.OWASPCategory)
		}
		a.dispatcher.threatDetected(sctx, result)
	}
	a.dispatcher.analysisCompleted(sctx, result)

	a.logger.Debug("analysis completed",
		zap.String("analysis_id", analysisID),
		zap.Bool("is_threat", result.IsThreat),
		zap.Float64("confidence", result.Confidence),
		zap.String("decision_layer", result.DecisionLayer),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// runPipeline delegates to the orchestrator, converting a panic into an
// error so the OnAnalysisError policy can decide.
func (a *Analyzer) runPipeline(ctx context.Context, req *types.AnalysisRequest, warnings []string, analysisID string) (result *types.AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("orchestrator panicked",
				zap.String("analysis_id", analysisID),
				zap.Any("panic", r))
			result = nil
			err = fmt.Errorf("orchestrator panic: %v", r)
		}
	}()
	return a.pipeline.run(ctx, req, warnings, analysisID)
}

func (a *Analyzer) logAnalysisStart(analysisID string, req *types.AnalysisRequest) {
	fields := []zap.Field{
		zap.String("analysis_id", analysisID),
		zap.Int("prompt_length", len([]rune(req.Prompt))),
	}
	if a.opts.LogPromptContent {
		fields = append(fields, zap.String("prompt", req.Prompt))
	}
	a.logger.Debug("analysis started", fields...)
}
