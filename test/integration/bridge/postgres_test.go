// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

//go:build integration

package bridge_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const counterPlugin = `
function bump(opts)
    local n = tonumber(bridge.kv_get("count") or "0") + 1
    local err = bridge.kv_set("count", tostring(n))
    if err then error(err) end
    return {count = n}
end
`

var _ = Describe("PostgreSQL kv store", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
		env       []string
	)

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("bodo_test"),
			postgres.WithUsername("bodo"),
			postgres.WithPassword("bodo"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		cfgPath := filepath.Join(GinkgoT().TempDir(), "bridge.yaml")
		cfg := fmt.Sprintf("kv:\n  driver: postgres\n  dsn: %q\n", connStr)
		Expect(os.WriteFile(cfgPath, []byte(cfg), 0o600)).To(Succeed())

		env = append(isolatedEnv(), "BODO_BRIDGE_CONFIG="+cfgPath)
	})

	AfterAll(func() {
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	It("keeps values across invocations", func() {
		plugin := writePlugin("counter.lua", counterPlugin)

		first := runBridge(env, plugin, `{"hook":"bump"}`)
		Expect(first.ExitCode()).To(Equal(0))
		Expect(first.Out.Contents()).To(MatchJSON(`{"count":1}`))

		second := runBridge(env, plugin, `{"hook":"bump"}`)
		Expect(second.ExitCode()).To(Equal(0))
		Expect(second.Out.Contents()).To(MatchJSON(`{"count":2}`))
	})

	It("scopes keys to the plugin file", func() {
		other := writePlugin("counter.lua", counterPlugin)

		session := runBridge(env, other, `{"hook":"bump"}`)
		Expect(session.ExitCode()).To(Equal(0))
		Expect(session.Out.Contents()).To(MatchJSON(`{"count":1}`))

		pool, err := pgxpool.New(ctx, connStr)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		var plugins int
		Expect(pool.QueryRow(ctx, "SELECT count(DISTINCT namespace) FROM plugin_kv").Scan(&plugins)).To(Succeed())
		Expect(plugins).To(Equal(2))
	})
})
