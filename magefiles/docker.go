//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Postgres container used by test:postgres.
const (
	postgresImage     = "docker.io/library/postgres:16-alpine"
	postgresContainer = "tabshelf-test-postgres"
	postgresPassword  = "tabshelf"
	postgresPort      = "55432"
	postgresReadyWait = 60 * time.Second
)

// containerRuntime returns "podman" or "docker" if a working runtime
// is available, or "" if neither is usable. It checks both that the
// binary exists on PATH and that it can connect to its daemon/machine.
func containerRuntime() string {
	for _, name := range []string{"podman", "docker"} {
		if _, err := exec.LookPath(name); err != nil {
			continue
		}
		if exec.Command(name, "info").Run() != nil {
			fmt.Fprintf(os.Stderr, "WARNING: %s found on PATH but not usable (is the daemon/machine running?)\n", name)
			continue
		}
		return name
	}
	return ""
}

// postgresDSN is the connection string for the test container.
func postgresDSN() string {
	return fmt.Sprintf("postgres://postgres:%s@127.0.0.1:%s/postgres?sslmode=disable", postgresPassword, postgresPort)
}

// startPostgres runs a throwaway Postgres container and waits until it
// accepts connections. The returned func removes the container.
func startPostgres(rt string) (func(), error) {
	stop := func() {
		fmt.Fprintln(os.Stderr, "Removing Postgres container...")
		_ = exec.Command(rt, "rm", "-f", postgresContainer).Run()
	}
	stop()

	fmt.Fprintln(os.Stderr, "Starting Postgres container...")
	cmd := exec.Command(rt, "run", "-d", "--rm",
		"--name", postgresContainer,
		"-e", "POSTGRES_PASSWORD="+postgresPassword,
		"-p", "127.0.0.1:"+postgresPort+":5432",
		postgresImage)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}
	if err := waitForPostgres(rt); err != nil {
		stop()
		return nil, err
	}
	return stop, nil
}

// waitForPostgres polls pg_isready inside the container, then the mapped
// port from the host.
func waitForPostgres(rt string) error {
	deadline := time.Now().Add(postgresReadyWait)
	for time.Now().Before(deadline) {
		out, err := exec.Command(rt, "exec", postgresContainer, "pg_isready", "-U", "postgres").CombinedOutput()
		if err == nil && strings.Contains(string(out), "accepting connections") {
			conn, dialErr := net.DialTimeout("tcp", "127.0.0.1:"+postgresPort, time.Second)
			if dialErr == nil {
				conn.Close()
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("postgres not ready after %s", postgresReadyWait)
}
