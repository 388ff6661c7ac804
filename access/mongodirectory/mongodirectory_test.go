package mongodirectory

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/garagevoting/garage-node/access"
	"github.com/garagevoting/garage-node/util"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// mongoURI returns MONGODB_URL when set, otherwise starts a throwaway
// container if GARAGE_DOCKER_TESTS is enabled.
func mongoURI(t *testing.T) string {
	if uri := os.Getenv("MONGODB_URL"); uri != "" {
		return uri
	}
	if os.Getenv("GARAGE_DOCKER_TESTS") == "" {
		t.Skip("set MONGODB_URL or GARAGE_DOCKER_TESTS to run mongodb tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate mongo container: %v", err)
		}
	})
	host, err := container.Host(ctx)
	qt.Assert(t, err, qt.IsNil)
	port, err := container.MappedPort(ctx, "27017/tcp")
	qt.Assert(t, err, qt.IsNil)
	return fmt.Sprintf("mongodb://%s:%s", host, port.Port())
}

func TestDirectory(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	dir, err := New(ctx, mongoURI(t), "garage_test_"+util.RandomHex(4))
	c.Assert(err, qt.IsNil)
	defer func() { c.Assert(dir.Close(ctx), qt.IsNil) }()

	alice := &access.User{
		ID:        "alice",
		Email:     "alice@example.org",
		Name:      "Alice",
		Role:      access.RoleAdmin,
		TokenHash: access.HashToken("alice-token"),
	}
	c.Assert(dir.PutUser(ctx, alice), qt.IsNil)

	u, err := dir.GetUser(ctx, access.Query{ID: "alice"})
	c.Assert(err, qt.IsNil)
	c.Assert(u, qt.DeepEquals, alice)

	u, err = dir.GetUser(ctx, access.Query{TokenHash: access.HashToken("alice-token")})
	c.Assert(err, qt.IsNil)
	c.Assert(u.Email, qt.Equals, "alice@example.org")

	_, err = dir.GetUser(ctx, access.Query{Email: "nobody@example.org"})
	c.Assert(err, qt.ErrorIs, access.ErrUserNotFound)

	checker := access.NewDirectoryChecker(dir, 0)
	c.Assert(checker.HasRole(access.Actor{ID: "alice"}, access.RoleAdmin), qt.IsTrue)

	alice.Role = access.RoleUser
	c.Assert(dir.PutUser(ctx, alice), qt.IsNil)
	c.Assert(checker.HasRole(access.Actor{ID: "alice"}, access.RoleAdmin), qt.IsFalse)
}
