//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const envPostgresDSN = "TABSHELF_TEST_POSTGRES_DSN"

// Test groups test targets (all, unit, postgres, cover).
type Test mg.Namespace

// All runs every test. Postgres tests run only when TABSHELF_TEST_POSTGRES_DSN
// is set.
func (Test) All() error {
	return sh.RunV(binGo, "test", "-v", "./...")
}

// Unit runs the tests that need no external services.
func (Test) Unit() error {
	return sh.RunWithV(map[string]string{envPostgresDSN: ""}, binGo, "test", "-race", "./...")
}

// Postgres starts a Postgres container and runs the remote store tests
// against it.
func (Test) Postgres() error {
	rt := containerRuntime()
	if rt == "" {
		return fmt.Errorf("no container runtime found (tried podman, docker)")
	}
	stop, err := startPostgres(rt)
	if err != nil {
		return err
	}
	defer stop()
	return sh.RunWithV(map[string]string{envPostgresDSN: postgresDSN()},
		binGo, "test", "-v", "-count=1", "-run", "TestPostgres", "./internal/remote/")
}

// Cover writes a coverage profile to bin/coverage.out and prints the
// per-function summary.
func (Test) Cover() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	profile := filepath.Join(binaryDir, "coverage.out")
	if err := sh.RunV(binGo, "test", "-coverprofile="+profile, "./..."); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func="+profile)
}
