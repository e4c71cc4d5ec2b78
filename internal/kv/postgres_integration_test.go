// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

//go:build integration

package kv_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bodo-run/bodo-bridge/internal/kv"
)

var _ = Describe("PostgresStore", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		dsn       string
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

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	It("creates the table on first use and round-trips values", func() {
		store, err := kv.Open(ctx, kv.Options{Driver: kv.DriverPostgres, DSN: dsn})
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = store.Close() }()

		value, found, err := store.Get(ctx, "/plugins/metrics.lua", "start:build")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
		Expect(value).To(BeNil())

		Expect(store.Set(ctx, "/plugins/metrics.lua", "start:build", []byte("12.5"))).To(Succeed())
		Expect(store.Set(ctx, "/plugins/metrics.lua", "start:build", []byte("13"))).To(Succeed())

		value, found, err = store.Get(ctx, "/plugins/metrics.lua", "start:build")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(value).To(Equal([]byte("13")))
	})

	It("keeps empty values distinct from missing keys", func() {
		store, err := kv.Open(ctx, kv.Options{Driver: kv.DriverPostgres, DSN: dsn})
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = store.Close() }()

		Expect(store.Set(ctx, "/plugins/empty.lua", "blank", []byte{})).To(Succeed())
		Expect(store.Set(ctx, "/plugins/empty.lua", "nil", nil)).To(Succeed())

		for _, key := range []string{"blank", "nil"} {
			value, found, err := store.Get(ctx, "/plugins/empty.lua", key)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(value).To(Equal([]byte{}))
		}
	})

	It("shares values between separate connections", func() {
		writer, err := kv.OpenPostgres(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = writer.Close() }()
		reader, err := kv.OpenPostgres(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = reader.Close() }()

		Expect(writer.Set(ctx, "/plugins/a.lua", "k", []byte("a"))).To(Succeed())

		value, found, err := reader.Get(ctx, "/plugins/a.lua", "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(value).To(Equal([]byte("a")))

		value, found, err = reader.Get(ctx, "/plugins/b.lua", "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
		Expect(value).To(BeNil())

		Expect(writer.Delete(ctx, "/plugins/a.lua", "k")).To(Succeed())
		_, found, err = reader.Get(ctx, "/plugins/a.lua", "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})
})
