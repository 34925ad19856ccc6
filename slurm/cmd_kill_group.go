// Copyright 2018 Bull S.A.S. Atos Technologies - Bull, Rue Jean Jaures, B.P.68, 78340, Les Clayes-sous-Bois, France.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build !windows
// +build !windows

package slurm

import (
	"context"
	"os/exec"
	"syscall"

	"github.com/jnb666/mnistrun/log"
)

// groupCmd is an exec.Cmd which kills the whole process tree instead of just the parent process
type groupCmd struct {
	ctx context.Context
	*exec.Cmd
	waitDone chan struct{}
}

func command(ctx context.Context, name string, arg ...string) *groupCmd {
	logCommand(name, arg)
	cmd := &groupCmd{ctx: ctx, Cmd: exec.Command(name, arg...), waitDone: make(chan struct{})}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

func (c *groupCmd) Run() error {
	if err := c.Start(); err != nil {
		return err
	}
	return c.Wait()
}

func (c *groupCmd) Start() error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
	}
	if err := c.Cmd.Start(); err != nil {
		close(c.waitDone)
		return err
	}
	go func() {
		select {
		case <-c.ctx.Done():
			if err := syscall.Kill(-c.Process.Pid, syscall.SIGKILL); err != nil {
				log.Warnf("killing process group %d: %v", c.Process.Pid, err)
			}
		case <-c.waitDone:
		}
	}()
	return nil
}

func (c *groupCmd) Wait() error {
	defer close(c.waitDone)
	return c.Cmd.Wait()
}
