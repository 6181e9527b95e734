// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package supervisor

import "net"

// KeepAlive holds a loopback socket open for the process lifetime. When
// the supervisor is launched by a service manager without a controlling
// terminal, there is otherwise no guaranteed pending I/O to anchor the
// runtime's event loop; binding and holding (never accepting from) this
// listener gives it one, per §4.9's event-loop/keep-alive requirement.
type KeepAlive struct {
	ln net.Listener
}

// NewKeepAlive binds a TCP listener on loopback at addr (":0" picks a
// free ephemeral port); the listener stays bound, never accepting, until
// Close.
func NewKeepAlive(addr string) (*KeepAlive, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &KeepAlive{ln: ln}, nil
}

// Addr returns the bound address, useful for tests and for logging what
// port was claimed when addr was ":0".
func (k *KeepAlive) Addr() net.Addr {
	return k.ln.Addr()
}

// Close releases the socket. Called during graceful shutdown.
func (k *KeepAlive) Close() error {
	return k.ln.Close()
}
