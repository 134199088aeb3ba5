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

// Package cleanup provides utilities for work that must run even after
// the caller's context has been cancelled.
package cleanup

import (
	"context"
	"time"
)

// notifyTimeout bounds detached work such as removal-watcher callbacks.
// Five seconds is generous for in-process notification while preventing
// a stuck callback from wedging the data path.
const notifyTimeout = 5 * time.Second

// Do runs fn with a context that:
// 1. Is not cancelled when the parent context is cancelled
// 2. Has a timeout of notifyTimeout
//
// Removal watchers are notified through this so an operation whose
// caller has already given up still delivers its side effects.
func Do(ctx context.Context, fn func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	fn(ctx)
	cancel()
}
