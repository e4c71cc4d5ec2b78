// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

//go:build !unix

package hookclient

import "os/exec"

func setProcGroup(*exec.Cmd) {}

func killProcGroup(cmd *exec.Cmd) error {
	if cmd.Process != nil {
		return cmd.Process.Kill()
	}
	return nil
}
