// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

//go:build integration

package bridge_test

import (
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/onsi/gomega/gbytes"
)

const scenarioPlugin = `
function onBeforeTaskRun(opts)
    print("preparing " .. opts.taskName)
end

function onAfterTaskRun(opts)
    return {task = opts.taskName, duration = 1.5, status = opts.status}
end

function onError(opts)
    error("disk full")
end
`

var _ = Describe("Process contract", func() {
	var (
		env    []string
		plugin string
	)

	BeforeEach(func() {
		env = isolatedEnv()
		plugin = writePlugin("scenario.lua", scenarioPlugin)
	})

	It("prints the hook result as one JSON line and exits 0", func() {
		session := runBridge(env, plugin, `{"hook":"onAfterTaskRun","taskName":"build","status":0}`)

		Expect(session.ExitCode()).To(Equal(0))
		Expect(string(session.Out.Contents())).To(MatchJSON(`{"task":"build","duration":1.5,"status":0}`))
		Expect(string(session.Out.Contents())).To(HaveSuffix("\n"))
	})

	It("writes nothing when the hook returns nothing", func() {
		session := runBridge(env, plugin, `{"hook":"onBeforeTaskRun","taskName":"build"}`)

		Expect(session.ExitCode()).To(Equal(0))
		Expect(session.Out.Contents()).To(BeEmpty())
		Expect(session.Err).To(gbytes.Say("preparing build"))
	})

	It("exits 1 when the contract is missing", func() {
		session := runBridge(env, "", "")

		Expect(session.ExitCode()).To(Equal(1))
		Expect(session.Out.Contents()).To(BeEmpty())
		Expect(session.Err).To(gbytes.Say("BODO_OPTS"))
	})

	It("exits 1 when BODO_OPTS is not JSON", func() {
		session := runBridge(env, plugin, `{hook:`)

		Expect(session.ExitCode()).To(Equal(1))
		Expect(session.Err).To(gbytes.Say("INVALID_OPTIONS_FORMAT"))
	})

	It("exits 1 and names the hook when it is not defined", func() {
		session := runBridge(env, plugin, `{"hook":"onBodoExit"}`)

		Expect(session.ExitCode()).To(Equal(1))
		Expect(session.Out.Contents()).To(BeEmpty())
		Expect(session.Err).To(gbytes.Say("onBodoExit"))
	})

	It("reports the plugin's error message", func() {
		session := runBridge(env, plugin, `{"hook":"onError","taskName":"build"}`)

		Expect(session.ExitCode()).To(Equal(1))
		Expect(session.Out.Contents()).To(BeEmpty())
		Expect(session.Err).To(gbytes.Say("disk full"))
	})

	It("traces on stderr without changing stdout when verbose", func() {
		opts := `{"hook":"onAfterTaskRun","taskName":"build","status":0}`
		quiet := runBridge(env, plugin, opts)
		loud := runBridge(env, plugin, opts, "BODO_VERBOSE=true")

		Expect(loud.ExitCode()).To(Equal(0))
		Expect(loud.Out.Contents()).To(Equal(quiet.Out.Contents()))
		Expect(loud.Err).To(gbytes.Say("plugin path"))
		Expect(loud.Err).To(gbytes.Say("resolved hook"))
	})

	It("lists plugin exports", func() {
		session := runCommand(env, "exports", plugin)

		Expect(session.ExitCode()).To(Equal(0))
		Expect(string(session.Out.Contents())).To(Equal("onAfterTaskRun\nonBeforeTaskRun\nonError\n"))
	})
})
