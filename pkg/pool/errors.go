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

package pool

import (
	"errors"
	"fmt"

	"github.com/awslabs/operatorpkg/serrors"

	"github.com/lgtm-migrator/device-pool/internal/ledger"
)

// ProvisioningError is surfaced for Provision, Describe, Release, Extend
// failures: back-end cloud calls, a refused enqueue, or a closed pool.
type ProvisioningError struct{ err error }

func (e *ProvisioningError) Error() string { return e.err.Error() }
func (e *ProvisioningError) Unwrap() error { return e.err }

// NewProvisioningError wraps err with structured key/value context.
func NewProvisioningError(err error, kvs ...interface{}) *ProvisioningError {
	return &ProvisioningError{err: serrors.Wrap(err, kvs...)}
}

// ReservationError is surfaced when Exchange cannot resolve a deviceId.
type ReservationError struct{ err error }

func (e *ReservationError) Error() string { return e.err.Error() }
func (e *ReservationError) Unwrap() error { return e.err }

// NewReservationError wraps err with structured key/value context.
func NewReservationError(err error, kvs ...interface{}) *ReservationError {
	return &ReservationError{err: serrors.Wrap(err, kvs...)}
}

// InvalidInput is raised synchronously from construction or Provision when
// the caller gave us something we can never act on.
var ErrInvalidInput = errors.New("invalid input")

// ErrClosed is returned by every public method once Close has completed.
var ErrClosed = errors.New("pool closed")

// ErrNotFound is returned by Describe when the id is unknown. Aliased from
// internal/ledger so callers can errors.Is against the single sentinel the
// ledger actually returns.
var ErrNotFound = ledger.ErrNotFound

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
