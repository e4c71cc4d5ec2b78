// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

//go:build integration

package bridge_test

import (
	"bytes"
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/bodo-run/bodo-bridge/pkg/hookclient"
)

var _ = Describe("Hook runner", func() {
	var (
		ctx    context.Context
		runner *hookclient.Runner
		stderr *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		stderr = &bytes.Buffer{}
		runner = &hookclient.Runner{
			Invoker: &hookclient.Client{BridgePath: bridgePath, Env: isolatedEnv()},
			Plugins: []string{repoPlugin("metrics"), repoPlugin("logger")},
			Stderr:  stderr,
		}
	})

	It("times a task across separate invocations", func() {
		_, err := runner.OnBeforeTaskRun(ctx, "build", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(stderr.String()).To(ContainSubstring("[bodo] starting build"))

		results, err := runner.OnAfterTaskRun(ctx, "build", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))

		metrics := results[0].Response.Result
		Expect(metrics).To(HaveKeyWithValue("task", "build"))
		Expect(metrics).To(HaveKeyWithValue("status", float64(0)))
		Expect(metrics["duration"]).To(BeNumerically(">", 0))

		Expect(results[1].Response.Result).To(BeNil())
	})

	It("passes command results back from every plugin", func() {
		results, err := runner.OnCommandReady(ctx, "make all", "build")
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[1].Response.Result).To(Equal(map[string]any{"command": "make all", "logged": true}))
	})

	It("stops at a failing plugin", func() {
		broken := writePlugin("broken.lua", `function onBodoExit(opts) error("cannot flush") end`)
		runner.Plugins = []string{broken, repoPlugin("logger")}

		results, err := runner.OnBodoExit(ctx, 0)
		Expect(err).To(HaveOccurred())
		Expect(results).To(BeEmpty())

		var hookErr *hookclient.HookError
		Expect(errors.As(err, &hookErr)).To(BeTrue())
		Expect(hookErr.ExitCode).To(Equal(1))
		Expect(hookErr.Hook).To(Equal(hookclient.HookBodoExit))
		Expect(hookErr.Stderr).To(ContainSubstring("cannot flush"))
	})
})
