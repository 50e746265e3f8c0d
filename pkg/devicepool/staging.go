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

import (
	"fmt"

	"github.com/google/uuid"
)

// StagingTransferAgentFactory opens a StagingTransferAgent bound to one
// provision's connection.
type StagingTransferAgentFactory struct{}

func (StagingTransferAgentFactory) Connect(provisionID string, conn Connection, host Host) (Agent, error) {
	return &StagingTransferAgent{provisionID: provisionID, conn: conn, host: host}, nil
}

// StagingTransferAgent stamps every transferred file with a fresh staging
// id before handing it to the connection, mirroring a real content-transfer
// agent's object-key convention without requiring an actual object store
// (spec §8 scenario 3: two files produce two distinct staging ids).
type StagingTransferAgent struct {
	provisionID string
	conn        Connection
	host        Host
}

func (a *StagingTransferAgent) Send(sourcePath, destination string) (string, error) {
	stagingID := uuid.NewString()
	cmd := fmt.Sprintf("cp %q %q", sourcePath, destination)
	if _, err := a.conn.Run(cmd); err != nil {
		return "", fmt.Errorf("staging %s as %s for provision %s: %w", sourcePath, stagingID, a.provisionID, err)
	}
	return stagingID, nil
}
