//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the tabshelf project using Mage.
//
// Usage:
//
//	mage build             Compile tabshelf to bin/
//	mage test:all          Run all tests
//	mage test:unit         Run tests that need no external services
//	mage test:postgres     Run the remote store tests against a Postgres container
//	mage test:cover        Write a coverage profile to bin/coverage.out
//	mage lint              Run golangci-lint
//	mage clean             Remove build artifacts
//	mage install           Install tabshelf to GOPATH/bin
//	mage stats             Print Go LOC as JSON
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "tabshelf"
	binaryDir  = "bin"
	cmdDir     = "./cmd/tabshelf"
	modulePath = "github.com/mesh-intelligence/tabshelf"
)

// ldflags stamps the release version into the binary when TABSHELF_VERSION
// is set.
func ldflags() string {
	v := os.Getenv("TABSHELF_VERSION")
	if v == "" {
		return ""
	}
	return "-X " + modulePath + "/internal/cli.Version=" + v
}

// Build compiles the tabshelf binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	args := []string{"build", "-v", "-o", filepath.Join(binaryDir, binaryName)}
	if f := ldflags(); f != "" {
		args = append(args, "-ldflags", f)
	}
	return sh.RunV(binGo, append(args, cmdDir)...)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
