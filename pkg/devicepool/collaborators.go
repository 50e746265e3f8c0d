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

package devicepool

import "github.com/awslabs/operatorpkg/serrors"

// Connection is a live channel to a leased Host. The core never sees this
// type; it is consumed only by DevicePool, immediately after Exchange.
type Connection interface {
	// Run executes cmd on the remote host and returns its combined output.
	Run(cmd string) (string, error)
	Close() error
}

// ConnectionFactory opens a Connection to a Host.
type ConnectionFactory interface {
	Connect(Host) (Connection, error)
}

// Agent transfers a single file to destination on the host it was opened
// against, returning the staging id it was tracked under.
type Agent interface {
	Send(sourcePath, destination string) (stagingID string, err error)
}

// ContentTransferAgentFactory opens an Agent bound to one provision's
// connection.
type ContentTransferAgentFactory interface {
	Connect(provisionID string, conn Connection, host Host) (Agent, error)
}

// ConnectionError wraps a ConnectionFactory failure.
type ConnectionError struct{ err error }

func (e *ConnectionError) Error() string { return e.err.Error() }
func (e *ConnectionError) Unwrap() error { return e.err }

func newConnectionError(err error, kvs ...interface{}) *ConnectionError {
	return &ConnectionError{err: serrors.Wrap(err, kvs...)}
}

// ContentTransferError wraps a ContentTransferAgentFactory or Agent.Send
// failure.
type ContentTransferError struct{ err error }

func (e *ContentTransferError) Error() string { return e.err.Error() }
func (e *ContentTransferError) Unwrap() error { return e.err }

func newContentTransferError(err error, kvs ...interface{}) *ContentTransferError {
	return &ContentTransferError{err: serrors.Wrap(err, kvs...)}
}
