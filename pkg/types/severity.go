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
package types

// Severity grades a threat. It maps to and from confidence with fixed
// thresholds so results stay comparable across layers.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// SeverityFromConfidence derives severity monotonically from confidence:
// >=0.9 Critical, >=0.8 High, >=0.6 Medium, else Low.
func SeverityFromConfidence(confidence float64) Severity {
	switch {
	case confidence >= 0.9:
		return SeverityCritical
	case confidence >= 0.8:
		return SeverityHigh
	case confidence >= 0.6:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ToConfidence returns the confidence a pattern match of this severity
// contributes to the pattern layer score.
func (s Severity) ToConfidence() float64 {
	switch s {
	case SeverityCritical:
		return 0.95
	case SeverityHigh:
		return 0.85
	case SeverityMedium:
		return 0.7
	default:
		return 0.5
	}
}

// Sensitivity is a coarse dial that proportionally scales trigger thresholds
// and signal contributions across the heuristic and ML layers.
type Sensitivity string

const (
	SensitivityLow      Sensitivity = "Low"
	SensitivityMedium   Sensitivity = "Medium"
	SensitivityHigh     Sensitivity = "High"
	SensitivityParanoid Sensitivity = "Paranoid"
)

// ThresholdScale returns the multiplier applied to trigger thresholds.
// Lower sensitivity raises thresholds (fires less), higher lowers them.
func (s Sensitivity) ThresholdScale() float64 {
	switch s {
	case SensitivityLow:
		return 1.25
	case SensitivityHigh:
		return 0.8
	case SensitivityParanoid:
		return 0.6
	default:
		return 1.0
	}
}

// ContributionScale returns the multiplier applied to signal contributions
// and final scores. It is the inverse dial of ThresholdScale: higher
// sensitivity amplifies contributions proportionally.
func (s Sensitivity) ContributionScale() float64 {
	return 1.0 / s.ThresholdScale()
}
