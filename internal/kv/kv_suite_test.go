// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

//go:build integration

package kv_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

func TestKV(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "KV Suite")
}
