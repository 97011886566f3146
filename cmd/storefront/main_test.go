package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefront/svc/wp"
	"github.com/dmitrymomot/storefront/svc/wp/wptest"
)

type cli struct {
	t    *testing.T
	srv  *wptest.Server
	dir  string
	args []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	srv := wptest.NewT(t)
	srv.AddUser("alice", "secret", "abc123", wp.Identity{Email: "alice@example.com", Nicename: "alice", DisplayName: "Alice"})
	dir := t.TempDir()
	return &cli{t: t, srv: srv, dir: dir, args: []string{"--base-url", srv.URL, "--state-dir", dir}}
}

// run executes one command as a separate process run would: a fresh
// command tree and app, sharing only the state directory.
func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(append([]string{}, c.args...), args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_SessionLifecycle(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("login", "-u", "alice", "-p", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Alice (alice@example.com)")

	out, err = c.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice <alice@example.com> @alice")

	out, err = c.run("validate")
	require.NoError(t, err)
	assert.Equal(t, "valid: true\n", out)

	out, err = c.run("cart", "add", "42", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "item-42")

	out, err = c.run("--json", "cart")
	require.NoError(t, err)
	var cart wp.Cart
	require.NoError(t, json.Unmarshal([]byte(out), &cart))
	assert.Equal(t, 2, cart.ItemsCount)

	_, err = c.run("cart", "remove", "item-42")
	require.NoError(t, err)

	out, err = c.run("refresh")
	require.NoError(t, err)
	assert.Equal(t, "refreshed: true\n", out)

	_, err = c.run("logout")
	require.NoError(t, err)

	_, err = c.run("whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)

	out, err = c.run("validate")
	require.NoError(t, err)
	assert.Equal(t, "valid: false\n", out)
}

func TestCLI_LoginFailure(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("login", "-u", "alice", "-p", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incorrect")

	_, err = c.run("cart")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestCLI_ArgumentValidation(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("cart", "add", "abc")
	assert.ErrorContains(t, err, "invalid product id")

	_, err = c.run("login", "-u", "alice")
	assert.Error(t, err)
}

func TestCLI_Status(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("status")
	require.NoError(t, err)
	assert.Equal(t, "store_ready: true\n", out)

	out, err = c.run("--json", "status")
	require.NoError(t, err)
	assert.JSONEq(t, `{"store_ready":true}`, out)
}
