package access

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestRoleSatisfies(t *testing.T) {
	c := qt.New(t)

	c.Assert(RoleAdmin.Satisfies(RoleAdmin), qt.IsTrue)
	c.Assert(RoleSuperAdmin.Satisfies(RoleAdmin), qt.IsTrue)
	c.Assert(RoleUser.Satisfies(RoleAdmin), qt.IsFalse)
	c.Assert(RoleUser.Satisfies(RoleUser), qt.IsTrue)
	c.Assert(Role("").Satisfies(RoleUser), qt.IsFalse)
	c.Assert(Role("root").Satisfies(RoleUser), qt.IsFalse)

	r, err := ParseRole("super-admin")
	c.Assert(err, qt.IsNil)
	c.Assert(r, qt.Equals, RoleSuperAdmin)
	_, err = ParseRole("owner")
	c.Assert(err, qt.ErrorMatches, `unknown role "owner"`)
}

func TestRoleChecker(t *testing.T) {
	c := qt.New(t)
	var checker Checker = RoleChecker{}
	c.Assert(checker.HasRole(Actor{ID: "a", Role: RoleAdmin}, RoleAdmin), qt.IsTrue)
	c.Assert(checker.HasRole(Actor{}, RoleAdmin), qt.IsFalse)
}

type failingDirectory struct{}

func (failingDirectory) GetUser(context.Context, Query) (*User, error) {
	return nil, errors.New("connection refused")
}

func TestDirectoryChecker(t *testing.T) {
	c := qt.New(t)

	dir := NewMemoryDirectory(
		&User{ID: "alice", Email: "alice@example.org", Role: RoleAdmin, TokenHash: HashToken("alice-token")},
		&User{ID: "bob", Email: "bob@example.org", Role: RoleUser},
	)
	checker := NewDirectoryChecker(dir, 0)

	c.Assert(checker.HasRole(Actor{ID: "alice"}, RoleAdmin), qt.IsTrue)
	c.Assert(checker.HasRole(Actor{ID: "bob"}, RoleAdmin), qt.IsFalse)
	c.Assert(checker.HasRole(Actor{ID: "bob"}, RoleUser), qt.IsTrue)
	c.Assert(checker.HasRole(Actor{ID: "carol"}, RoleUser), qt.IsFalse)
	c.Assert(checker.HasRole(Actor{}, RoleUser), qt.IsFalse)

	// the role stored in the directory wins over the one claimed by the actor
	c.Assert(checker.HasRole(Actor{ID: "bob", Role: RoleSuperAdmin}, RoleAdmin), qt.IsFalse)

	dir.Put(&User{ID: "alice", Role: RoleUser})
	c.Assert(checker.HasRole(Actor{ID: "alice"}, RoleAdmin), qt.IsFalse)

	c.Assert(NewDirectoryChecker(failingDirectory{}, 0).HasRole(Actor{ID: "alice"}, RoleUser), qt.IsFalse)
}

func TestMemoryDirectoryQueries(t *testing.T) {
	c := qt.New(t)
	dir := NewMemoryDirectory(&User{ID: "alice", Email: "alice@example.org", Role: RoleAdmin, TokenHash: HashToken("t")})

	u, err := dir.GetUser(context.Background(), Query{Email: "alice@example.org"})
	c.Assert(err, qt.IsNil)
	c.Assert(u.ID, qt.Equals, "alice")

	u, err = dir.GetUser(context.Background(), Query{TokenHash: HashToken("t")})
	c.Assert(err, qt.IsNil)
	c.Assert(u.Role, qt.Equals, RoleAdmin)

	_, err = dir.GetUser(context.Background(), Query{TokenHash: HashToken("other")})
	c.Assert(err, qt.ErrorIs, ErrUserNotFound)
	_, err = dir.GetUser(context.Background(), Query{})
	c.Assert(err, qt.ErrorIs, ErrUserNotFound)
}
