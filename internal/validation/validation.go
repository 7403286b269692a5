// Package validation provides input validation for CLI-supplied paths and
// names, guarding against path traversal and malformed input before a run
// starts.
package validation

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
)

const (
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
	// MaxNameLength is the maximum allowed modlet name length.
	MaxNameLength = 255
)

// Common validation errors.
var (
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrPathTooLong      = errors.New("path too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrNotADirectory    = errors.New("not a directory")
	ErrInvalidName      = errors.New("invalid name")
)

// ValidatePath checks a path for length limits, null bytes and control
// characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// ValidateSourceDir checks that path passes ValidatePath and names an
// existing directory.
func ValidateSourceDir(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("source path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotADirectory, path)
	}
	return nil
}

// ValidateModletName checks a user-supplied name for the combined modlet.
// The name ends up in a filesystem path and inside XML attribute values.
func ValidateModletName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: too long", ErrInvalidName)
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: path separator or null byte not allowed", ErrInvalidName)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidName)
		}
	}
	return nil
}
