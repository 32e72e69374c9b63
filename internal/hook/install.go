package hook

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joescharf/ledger/internal/errs"
	"github.com/joescharf/ledger/internal/git"
)

// HookName is the git hook the ledger installs.
const HookName = "post-commit"

// Marker identifies a hook script written by Install.
const Marker = "# codex-ledger post-commit hook"

// State describes what occupies the post-commit hook slot.
type State string

const (
	StateMissing   State = "missing"
	StateInstalled State = "installed"
	StateForeign   State = "foreign"
)

// Script returns the hook script that runs `<binary> hooks run`.
func Script(binary string) string {
	return strings.Join([]string{
		"#!/bin/sh",
		Marker,
		shellQuote(binary) + " hooks run || true",
		"",
	}, "\n")
}

// shellQuote wraps s in single quotes for sh, so nothing in it expands.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Install writes the post-commit hook into hooksDir. An existing hook is
// only replaced when force is set; installed reports whether it was written.
func Install(hooksDir, binary string, force bool) (path string, installed bool, err error) {
	info, err := os.Stat(hooksDir)
	if err != nil || !info.IsDir() {
		return "", false, fmt.Errorf("no hooks directory at %s, are you in a git repo: %w", hooksDir, errs.ErrPreconditionFailed)
	}

	path = filepath.Join(hooksDir, HookName)
	if _, err := os.Stat(path); err == nil && !force {
		return path, false, nil
	}

	if err := os.WriteFile(path, []byte(Script(binary)), 0o755); err != nil {
		return path, false, fmt.Errorf("write hook: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0o755); err != nil {
		return path, false, fmt.Errorf("chmod hook: %w", err)
	}
	return path, true, nil
}

// Uninstall removes the post-commit hook if Install wrote it. A hook from
// another tool is left alone and reported as ErrPreconditionFailed.
func Uninstall(hooksDir string) (string, error) {
	path := filepath.Join(hooksDir, HookName)
	state, err := Inspect(hooksDir)
	if err != nil {
		return path, err
	}
	switch state {
	case StateMissing:
		return path, fmt.Errorf("no %s hook at %s: %w", HookName, path, errs.ErrNotFound)
	case StateForeign:
		return path, fmt.Errorf("%s was not installed by ledger: %w", path, errs.ErrPreconditionFailed)
	}
	if err := os.Remove(path); err != nil {
		return path, fmt.Errorf("remove hook: %w", err)
	}
	return path, nil
}

// Inspect reports whether the post-commit hook is missing, ours, or another
// tool's.
func Inspect(hooksDir string) (State, error) {
	data, err := os.ReadFile(filepath.Join(hooksDir, HookName))
	if errors.Is(err, fs.ErrNotExist) {
		return StateMissing, nil
	}
	if err != nil {
		return "", fmt.Errorf("read hook: %w", err)
	}
	if strings.Contains(string(data), Marker) {
		return StateInstalled, nil
	}
	return StateForeign, nil
}

// HooksDir returns the directory git runs hooks from for the working tree
// at dir.
func HooksDir(g git.Client, dir string) (string, error) {
	hooksDir, err := g.HooksDir(dir)
	if err != nil {
		return "", fmt.Errorf("resolve hooks directory: %w", err)
	}
	return hooksDir, nil
}
