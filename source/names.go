package source

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidNamespace = errors.New("source: namespace must be 1-128 unreserved characters (a-z A-Z 0-9 - . _ ~)")
	ErrInvalidFlag      = errors.New("source: flag name must match ^[a-zA-Z0-9_.-]{1,128}$")
)

const maxNameLen = 128

var flagName = regexp.MustCompile(`^[a-zA-Z0-9_.\-]{1,128}$`)

// ValidateNamespace checks that ns is safe to place in a URL path segment
// or a redis key without escaping.
func ValidateNamespace(ns string) error {
	if len(ns) == 0 || len(ns) > maxNameLen {
		return ErrInvalidNamespace
	}
	for i := 0; i < len(ns); i++ {
		if !unreserved(ns[i]) {
			return ErrInvalidNamespace
		}
	}
	return nil
}

// ValidateFlag checks a flag name before it is published.
func ValidateFlag(flag string) error {
	if !flagName.MatchString(flag) {
		return ErrInvalidFlag
	}
	return nil
}

// RFC 3986 section 2.3
func unreserved(b byte) bool {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		return true
	case b == '-', b == '.', b == '_', b == '~':
		return true
	}
	return false
}
