// Package validation checks user-supplied paths and archive member names
// before the converter touches the filesystem or trusts a bundle.
package validation

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"
)

// Limits applied to untrusted input.
const (
	// MaxMemberSize is the largest bundle member read into memory (256 MB).
	MaxMemberSize = 256 << 20
	// MaxNameLength is the maximum allowed archive member name length.
	MaxNameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrInvalidName      = errors.New("invalid member name")
	ErrPathTooLong      = errors.New("path too long")
	ErrNameTooLong      = errors.New("member name too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrTooLarge         = errors.New("member too large")
)

// ValidatePath rejects empty or overlong paths and paths holding NUL or
// other control characters.
func ValidatePath(p string) error {
	if p == "" {
		return ErrEmptyPath
	}
	if len(p) > MaxPathLength {
		return ErrPathTooLong
	}
	for _, r := range p {
		if r == 0 {
			return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
		}
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// ValidateMemberName checks a tar member name from a bundle. Members are
// flat: no directories, no absolute paths, no "..".
func ValidateMemberName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if strings.HasPrefix(name, "/") || path.Clean(name) != name || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidName)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidName)
		}
	}
	return nil
}

// CheckSize rejects a member larger than MaxMemberSize.
func CheckSize(name string, size int64) error {
	if size < 0 || size > MaxMemberSize {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, name, size, MaxMemberSize)
	}
	return nil
}
