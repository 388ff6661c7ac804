// Package access decides who may administer polls. The poll controller only
// sees the Checker predicate; where roles come from (the caller's token, a
// member directory) is decided when the node is wired.
package access

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/garagevoting/garage-node/log"
)

// Role is an access tier.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

var rank = map[Role]int{RoleUser: 1, RoleAdmin: 2, RoleSuperAdmin: 3}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := rank[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Satisfies reports whether r grants at least required. A super-admin
// passes every admin check.
func (r Role) Satisfies(required Role) bool {
	have, ok := rank[r]
	return ok && have >= rank[required]
}

// Actor is the caller of an operation. The zero Actor is anonymous.
type Actor struct {
	ID   string
	Role Role
}

// Checker is the capability predicate consulted before administrative
// operations.
type Checker interface {
	HasRole(actor Actor, role Role) bool
}

// RoleChecker trusts the role carried by the actor, for callers already
// authenticated upstream.
type RoleChecker struct{}

func (RoleChecker) HasRole(actor Actor, role Role) bool {
	return actor.Role.Satisfies(role)
}

// ErrUserNotFound is returned by a Directory when no user matches.
var ErrUserNotFound = errors.New("user not found")

// User is the subset of a member account the node reads.
type User struct {
	ID        string `json:"id" bson:"_id"`
	Email     string `json:"email" bson:"email"`
	Name      string `json:"name" bson:"name"`
	Role      Role   `json:"accessRole" bson:"accessRole"`
	TokenHash []byte `json:"-" bson:"tokenHash,omitempty"`
}

// Query selects a user by one of its fields. Empty fields are ignored.
type Query struct {
	ID        string
	Email     string
	TokenHash []byte
}

// Directory is the member account service.
type Directory interface {
	GetUser(ctx context.Context, q Query) (*User, error)
}

// HashToken is how bearer tokens are stored on user records.
func HashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// DirectoryChecker resolves the actor's role from a Directory on every
// check, so demotions apply immediately.
type DirectoryChecker struct {
	dir     Directory
	timeout time.Duration
}

func NewDirectoryChecker(dir Directory, timeout time.Duration) *DirectoryChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DirectoryChecker{dir: dir, timeout: timeout}
}

func (c *DirectoryChecker) HasRole(actor Actor, role Role) bool {
	if actor.ID == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	user, err := c.dir.GetUser(ctx, Query{ID: actor.ID})
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			log.Warnw("role lookup failed", "actor", actor.ID, "error", err.Error())
		}
		return false
	}
	return user.Role.Satisfies(role)
}
