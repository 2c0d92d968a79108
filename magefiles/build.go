//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for medtrack using Mage.
//
// Usage:
//
//	mage build       Compile medtrack to bin/
//	mage install     Install medtrack to GOPATH/bin
//	mage test:all    Run every test
//	mage test:race   Run every test with the race detector
//	mage test:cover  Write coverage to coverage.out
//	mage lint        Run golangci-lint
//	mage clean       Remove build artifacts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "medtrack"
	binaryDir  = "bin"
	cmdDir     = "./cmd/medtrack"
	versionVar = "github.com/mesh-intelligence/medtrack/internal/cli.Version"
)

// Build compiles the medtrack binary to bin/. MEDTRACK_VERSION, when set,
// is stamped into the version command.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	args := []string{"build", "-v", "-o", filepath.Join(binaryDir, binaryName)}
	if v := os.Getenv("MEDTRACK_VERSION"); v != "" {
		args = append(args, "-ldflags", "-X "+versionVar+"="+v)
	}
	return sh.RunV(binGo, append(args, cmdDir)...)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	_ = os.Remove(coverProfile)
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
