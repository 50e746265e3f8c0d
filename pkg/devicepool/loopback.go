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
	"os/exec"
)

// LoopbackConnectionFactory opens one local-shell Connection per Host,
// grounded on the one-connection-per-instance idiom of a cluster manager
// dialing out to each instance it allocates. It never leaves the local
// machine; it exists so DevicePool is exercisable without a real SSH/cloud
// stack.
type LoopbackConnectionFactory struct{}

func (LoopbackConnectionFactory) Connect(h Host) (Connection, error) {
	return &loopbackConnection{host: h}, nil
}

type loopbackConnection struct {
	host   Host
	closed bool
}

func (c *loopbackConnection) Run(cmd string) (string, error) {
	if c.closed {
		return "", fmt.Errorf("connection to %s is closed", c.host.DeviceID)
	}
	out, err := exec.Command("sh", "-c", cmd).CombinedOutput()
	return string(out), err
}

func (c *loopbackConnection) Close() error {
	c.closed = true
	return nil
}
