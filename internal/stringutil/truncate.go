/*
   Copyright The containerd Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package stringutil provides bounded string rendering for log fields.
package stringutil

// TruncateOutput renders a byte buffer as a string capped at maxLen
// characters, marking truncation. Used to keep object data and
// attribute values readable in debug logs.
func TruncateOutput(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "... (truncated)"
}

// TruncateID caps an identifier at maxLen characters with an ellipsis,
// for log fields carrying caller-controlled object ids.
func TruncateID(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
