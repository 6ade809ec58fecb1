// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/google/shlex"
)

// =============================================================================
// LAUNCH COMMANDS
// =============================================================================

// Command is one candidate way to launch a language server.
type Command struct {
	// Program is the executable name or path.
	Program string

	// Args are command-line arguments to pass to the server.
	Args []string
}

// String returns the command line joined with spaces.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Program
	}
	return c.Program + " " + strings.Join(c.Args, " ")
}

// CommandFromArgv builds a Command from an argv slice. An empty slice gives
// the zero Command.
func CommandFromArgv(argv []string) Command {
	if len(argv) == 0 {
		return Command{}
	}
	return Command{Program: argv[0], Args: append([]string(nil), argv[1:]...)}
}

// DefaultOverrideEnv names the environment variable holding an explicit
// launch command.
const DefaultOverrideEnv = "LSPBRIDGE_SERVER_COMMAND"

// DefaultServers returns the well-known Python language server launchers,
// tried in order when no override is given.
func DefaultServers() []Command {
	python := "python3"
	if runtime.GOOS == "windows" {
		python = "python"
	}
	return []Command{
		{Program: "pylsp"},
		{Program: python, Args: []string{"-m", "pylsp"}},
		{Program: "pyright-langserver", Args: []string{"--stdio"}},
		{Program: "jedi-language-server"},
	}
}

// SplitCommandLine splits an override string into argv using shell quoting
// rules. On Windows backslashes are kept literally so paths survive.
func SplitCommandLine(s string) ([]string, error) {
	return splitCommandLine(s, runtime.GOOS)
}

func splitCommandLine(s, goos string) ([]string, error) {
	if goos == "windows" {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return shlex.Split(s)
}

// buildCandidates returns the ordered launch candidates: the override from
// the environment first (if set and parseable), then the fallback list.
func buildCandidates(cfg ClientConfig, getenv func(string) string, warn func(string)) []Command {
	var candidates []Command
	if cfg.OverrideEnv != "" {
		override := strings.TrimSpace(getenv(cfg.OverrideEnv))
		if override != "" {
			argv, err := splitCommandLine(override, runtime.GOOS)
			switch {
			case err != nil:
				warn(fmt.Sprintf("Invalid %s value; ignoring override.", cfg.OverrideEnv))
			case len(argv) > 0:
				candidates = append(candidates, CommandFromArgv(argv))
			}
		}
	}
	for _, c := range cfg.Servers {
		if c.Program != "" {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

// =============================================================================
// PROCESS LAUNCHING
// =============================================================================

// Process is a running language server.
type Process interface {
	// Pid returns the OS process id, or 0 if unknown.
	Pid() int

	// Stdin is where framed messages are written.
	Stdin() io.WriteCloser

	// Stdout carries framed messages from the server.
	Stdout() io.Reader

	// Stderr carries free-form diagnostic text.
	Stderr() io.Reader

	// Wait blocks until the process exits and returns its exit code.
	// It must be called only after Stdout and Stderr have been drained.
	Wait() (int, error)

	// Terminate asks the process to exit.
	Terminate() error

	// Kill forcibly stops the process.
	Kill() error
}

// Launcher resolves and starts server processes.
type Launcher interface {
	// Resolve reports whether the command's executable can be found.
	Resolve(cmd Command) bool

	// Start spawns cmd in dir. It must return within the lifetime of ctx.
	Start(ctx context.Context, cmd Command, dir string) (Process, error)
}

// ExecLauncher launches servers as OS child processes.
type ExecLauncher struct{}

// Resolve implements Launcher.
//
// Description:
//
//	A command resolves when its program is the running executable, is a
//	"python -m <module>" launcher, is an absolute path that exists, or is
//	found on PATH.
func (ExecLauncher) Resolve(c Command) bool {
	if c.Program == "" {
		return false
	}
	if exe, err := os.Executable(); err == nil && samePath(c.Program, exe) {
		return true
	}
	base := strings.ToLower(filepath.Base(c.Program))
	switch base {
	case "python", "python.exe", "python3", "python3.exe":
		if len(c.Args) > 0 && c.Args[0] == "-m" {
			return true
		}
	}
	if filepath.IsAbs(c.Program) {
		_, err := os.Stat(c.Program)
		return err == nil
	}
	_, err := exec.LookPath(c.Program)
	return err == nil
}

// Start implements Launcher.
//
// Description:
//
//	Creates the three pipes and starts the process. If ctx expires before
//	the start completes, ErrSpawnTimeout is returned and a late-starting
//	process is killed and reaped in the background.
func (ExecLauncher) Start(ctx context.Context, c Command, dir string) (Process, error) {
	cmd := exec.Command(c.Program, c.Args...)
	cmd.Dir = dir

	var closers []io.Closer
	closeAll := func() {
		for _, cl := range closers {
			_ = cl.Close()
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	closers = append(closers, stdin)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	closers = append(closers, stdout)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	started := make(chan error, 1)
	go func() { started <- cmd.Start() }()

	select {
	case err := <-started:
		if err != nil {
			return nil, fmt.Errorf("start process: %w", err)
		}
		return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
	case <-ctx.Done():
		go func() {
			if err := <-started; err == nil {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
			}
		}()
		return nil, fmt.Errorf("%w: %s", ErrSpawnTimeout, c)
	}
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Stderr() io.Reader     { return p.stderr }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if p.cmd.ProcessState == nil {
		return -1, err
	}
	return p.cmd.ProcessState.ExitCode(), err
}

func (p *execProcess) Terminate() error {
	if runtime.GOOS == "windows" {
		return p.cmd.Process.Kill()
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}
