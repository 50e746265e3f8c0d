/*
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

// Package obslog builds the default logr.Logger every package in this
// module falls back to when a caller's Options/Config leaves Log unset.
package obslog

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// Default returns a development-mode zap logger wrapped as a logr.Logger.
// Callers that want production encoding or a custom level should build
// their own logr.Logger and set it on Options/Config directly; this exists
// only to give the zero-value configuration a real logger instead of a
// silent no-op one.
func Default() logr.Logger {
	zl, err := zap.NewDevelopment()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}
