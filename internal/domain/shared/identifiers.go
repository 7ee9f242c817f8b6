// Package shared holds the primitives every domain package builds on:
// identifier rules, builtin identifiers, timestamps, and the domain
// event contract.
package shared

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Builtin identifiers. These exist in every tenant and are immutable.
const (
	RootFolderUUID = "--root--"

	AdminsGroupUUID    = "--admins--"
	AnonymousGroupUUID = "--anonymous--"

	RootUserEmail             = "root@antbox.io"
	AnonymousUserEmail        = "anonymous@antbox.io"
	LockSystemUserEmail       = "lock-system@antbox.io"
	WorkflowInstanceUserEmail = "workflow-instance@antbox.io"
)

var (
	idPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]{8,}$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// NewUUID produces a fresh node identifier.
func NewUUID() string {
	return uuid.New().String()
}

// IsValidID reports whether s is an acceptable uuid or fid.
func IsValidID(s string) bool {
	return idPattern.MatchString(s)
}

// IsBuiltinID reports whether s uses the reserved builtin form "--name--".
func IsBuiltinID(s string) bool {
	return len(s) > 4 && strings.HasPrefix(s, "--") && strings.HasSuffix(s, "--")
}

// IsValidEmail reports whether s looks like an email address.
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// NowISO returns the current UTC instant in the wire timestamp format.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
