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

import "fmt"

// CodeValidationFailed is the error code for rejected requests.
const CodeValidationFailed = "VALIDATION_FAILED"

// ValidationError reports a request rejected before the pipeline ran.
type ValidationError struct {
	// Code is the stable machine-readable identifier.
	Code string

	// Message joins the individual validation failure messages.
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ShieldError wraps an analysis failure surfaced under the fail-closed
// policy. The caller must treat the request as blocked.
type ShieldError struct {
	AnalysisID string
	Err        error
}

func (e *ShieldError) Error() string {
	return fmt.Sprintf("prompt analysis failed (analysis %s): %v", e.AnalysisID, e.Err)
}

func (e *ShieldError) Unwrap() error { return e.Err }
