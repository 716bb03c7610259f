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

	"go.uber.org/zap"

	"github.com/teradata-labs/promptshield/pkg/types"
)

// dispatcher fans analysis lifecycle events out to the registered handlers.
// Handlers run in registration order; a handler error or panic is logged and
// swallowed, and cancellation stops the fan-out.
type dispatcher struct {
	handlers []types.EventHandler
	logger   *zap.Logger
}

func newDispatcher(handlers []types.EventHandler, logger *zap.Logger) *dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &dispatcher{handlers: handlers, logger: logger}
}

func (d *dispatcher) analysisStarted(ctx context.Context, analysisID string, req *types.AnalysisRequest) {
	d.each(ctx, "AnalysisStarted", func(h types.EventHandler) error {
		return h.OnAnalysisStarted(ctx, analysisID, req)
	})
}

func (d *dispatcher) threatDetected(ctx context.Context, result *types.AnalysisResult) {
	d.each(ctx, "ThreatDetected", func(h types.EventHandler) error {
		return h.OnThreatDetected(ctx, result)
	})
}

func (d *dispatcher) analysisCompleted(ctx context.Context, result *types.AnalysisResult) {
	d.each(ctx, "AnalysisCompleted", func(h types.EventHandler) error {
		return h.OnAnalysisCompleted(ctx, result)
	})
}

func (d *dispatcher) each(ctx context.Context, event string, fire func(types.EventHandler) error) {
	for _, h := range d.handlers {
		if ctx.Err() != nil {
			return
		}
		d.fireOne(event, h, fire)
	}
}

func (d *dispatcher) fireOne(event string, h types.EventHandler, fire func(types.EventHandler) error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				zap.String("event", event),
				zap.Any("panic", r))
		}
	}()
	if err := fire(h); err != nil {
		d.logger.Warn("event handler failed",
			zap.String("event", event),
			zap.Error(err))
	}
}
