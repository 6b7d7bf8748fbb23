package e2e

import (
	"context"
	"net/http"
	"testing"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/adapters/localfs"
	"github.com/brettbedarf/treefs/adapters/memfs"
	"github.com/brettbedarf/treefs/adapters/restfs"
	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/copyto"
	"github.com/brettbedarf/treefs/diff"
	"github.com/brettbedarf/treefs/internal/restfake"
	"github.com/brettbedarf/treefs/pattern"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-git/go-billy/v5"
	billymemfs "github.com/go-git/go-billy/v5/memfs"
	billyutil "github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	webRole = "{\n  \"description\": \"web servers\",\n  \"name\": \"web\",\n  \"run_list\": [\n    \"recipe[apache]\"\n  ]\n}\n"
	alice   = "{\n  \"id\": \"alice\",\n  \"shell\": \"zsh\"\n}\n"
)

// environment is a local repository in memory next to a fake remote repository.
type environment struct {
	srv     *restfake.Server
	localFS billy.Filesystem
}

func newEnvironment(t *testing.T, files map[string]string) *environment {
	t.Helper()
	env := &environment{srv: restfake.NewDefaultServer(), localFS: billymemfs.New()}
	t.Cleanup(env.srv.Close)
	// the local repository has a directory per remote collection, like a checkout would
	for _, c := range config.DefaultCollections() {
		require.NoError(t, env.localFS.MkdirAll(c.Name, 0o755))
	}
	for name, content := range files {
		require.NoError(t, billyutil.WriteFile(env.localFS, name, []byte(content), 0o644))
	}
	return env
}

// local and remote return fresh roots; nodes cache what they load for their lifetime.
func (env *environment) local(t *testing.T) treefs.Node {
	t.Helper()
	root, err := localfs.NewFromFilesystem(env.localFS, "local/", nil)
	require.NoError(t, err)
	return root
}

func (env *environment) remote(t *testing.T) treefs.Node {
	t.Helper()
	root, err := restfs.New(config.Remote{URL: env.srv.URL, Timeout: 5, MaxRetries: 2},
		restfs.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	require.NoError(t, err)
	return root
}

func (env *environment) readLocal(t *testing.T, name string) string {
	t.Helper()
	data, err := billyutil.ReadFile(env.localFS, name)
	require.NoError(t, err)
	return string(data)
}

func upload(t *testing.T, env *environment, p string, opts copyto.Options) ([]string, error) {
	t.Helper()
	var events []string
	err := copyto.CopyTo(context.Background(), pattern.MustNew(p), env.local(t), env.remote(t), opts,
		func(e copyto.Event) { events = append(events, e.String()) })
	return events, err
}

func download(t *testing.T, env *environment, p string, opts copyto.Options) ([]string, error) {
	t.Helper()
	var events []string
	err := copyto.CopyTo(context.Background(), pattern.MustNew(p), env.remote(t), env.local(t), opts,
		func(e copyto.Event) { events = append(events, e.String()) })
	return events, err
}

func nameStatus(t *testing.T, env *environment, p string) []string {
	t.Helper()
	results, err := diff.Collect(context.Background(), pattern.MustNew(p), env.remote(t), env.local(t),
		diff.Options{Depth: diff.Unlimited})
	require.NoError(t, err)
	var out []string
	for _, r := range results {
		if s := r.NameStatus(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var unlimited = copyto.Options{Depth: copyto.Unlimited}

func TestDiffOnlyInEitherTree(t *testing.T) {
	t.Parallel()

	a := memfs.MustNew("A/", map[string]any{"both": map[string]any{"sub": "x"}, "a_only": "y"})
	b := memfs.MustNew("B/", map[string]any{"both": map[string]any{"sub": "x"}, "b_only": "z"})

	results, err := diff.Collect(context.Background(), pattern.MustNew("/"), a, b, diff.Options{Depth: diff.Unlimited})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "/a_only", results[0].Path)
	assert.Equal(t, diff.StatusDeleted, results[0].Status)
	assert.Equal(t, "/b_only", results[1].Path)
	assert.Equal(t, diff.StatusAdded, results[1].Status)
}

func TestDiffStructuredContent(t *testing.T) {
	t.Parallel()

	a := memfs.MustNew("A/", map[string]any{"cfg.json": `{"name":"x"}`})
	b := memfs.MustNew("B/", map[string]any{"cfg.json": `{"name":"x","extra":"v"}`})

	results, err := diff.Collect(context.Background(), pattern.MustNew("/"), a, b, diff.Options{Depth: diff.Unlimited})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, diff.StatusModified, results[0].Status)
	assert.Equal(t, []string{"extra exists in B/cfg.json but not in A/cfg.json"}, results[0].Messages)
}

func TestListNeverMatchesOutsidePattern(t *testing.T) {
	t.Parallel()

	root := memfs.MustNew("A/", map[string]any{
		"onedir": map[string]any{"inner": "x"},
		"afile":  "y",
	})
	matches, err := treefs.ListAll(context.Background(), root, pattern.MustNew("/*dir*"))
	require.NoError(t, err)
	var paths []string
	for _, n := range matches {
		paths = append(paths, n.Path())
	}
	assert.Equal(t, []string{"/onedir"}, paths)
	assert.Zero(t, root.Stats().Reads.Load())
}

func TestUploadRepository(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t, map[string]string{
		"roles/web.json":                webRole,
		"data_bags/users/alice.json":    alice,
		"environments/production.json": "{\n  \"name\": \"production\"\n}\n",
	})

	assert.Equal(t, []string{
		"A\t/data_bags/users\n",
		"A\t/environments/production.json\n",
		"A\t/roles/web.json\n",
	}, nameStatus(t, env, "/"))

	events, err := upload(t, env, "/", unlimited)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"Created /data_bags/users",
		"Created /data_bags/users/alice.json",
		"Created /environments/production.json",
		"Created /roles/web.json",
	}, events)

	assert.Equal(t, map[string]any{
		"name":        "web",
		"description": "web servers",
		"run_list":    []any{"recipe[apache]"},
	}, env.srv.Object("roles", "web"))
	assert.Equal(t, map[string]any{"id": "alice", "shell": "zsh"}, env.srv.Object("data/users", "alice"))

	assert.Empty(t, nameStatus(t, env, "/"))

	// a second upload has nothing left to do
	events, err = upload(t, env, "/", unlimited)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDownloadRepository(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t, nil)
	env.srv.Put("roles", "web", map[string]any{
		"name":        "web",
		"description": "web servers",
		"run_list":    []any{"recipe[apache]"},
	})
	env.srv.Put("data/users", "alice", map[string]any{"id": "alice", "shell": "zsh"})
	env.srv.AddPackage("cookbooks", "apache", "1.2.0", map[string]string{
		"metadata.rb":        "name 'apache'\n",
		"recipes/default.rb": "package 'httpd'\n",
	})

	events, err := download(t, env, "/", unlimited)
	require.NoError(t, err)
	assert.Contains(t, events, "Created /roles/web.json")
	assert.Contains(t, events, "Created /cookbooks/apache/recipes/default.rb")

	assert.Equal(t, webRole, env.readLocal(t, "roles/web.json"))
	assert.Equal(t, alice, env.readLocal(t, "data_bags/users/alice.json"))
	assert.Equal(t, "package 'httpd'\n", env.readLocal(t, "cookbooks/apache/recipes/default.rb"))

	assert.Empty(t, nameStatus(t, env, "/"))

	events, err = download(t, env, "/", unlimited)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStructuredDiffAgainstRemote(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t, map[string]string{
		// key order and layout differ, the values do not
		"roles/web.json": `{"run_list":["recipe[apache]"],"name":"web","description":"web servers"}`,
		"roles/db.json":  `{"name":"db","description":"postgres"}`,
	})
	env.srv.Put("roles", "web", map[string]any{
		"name":        "web",
		"description": "web servers",
		"run_list":    []any{"recipe[apache]"},
	})
	env.srv.Put("roles", "db", map[string]any{"name": "db", "description": "mysql"})

	results, err := diff.Collect(context.Background(), pattern.MustNew("/roles/*"), env.remote(t), env.local(t),
		diff.Options{Depth: diff.Unlimited})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/roles/db.json", results[0].Path)
	require.Len(t, results[0].Messages, 1)
	assert.Contains(t, results[0].Messages[0], "description is")
	assert.Contains(t, results[0].String(), "diff --treefs remote/roles/db.json local/roles/db.json\n")
}

func TestUploadPurge(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t, map[string]string{"roles/web.json": webRole})
	env.srv.Put("roles", "old", map[string]any{"name": "old"})

	events, err := upload(t, env, "/roles/*", copyto.Options{Depth: copyto.Unlimited, Purge: true, DryRun: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"Would create /roles/web.json",
		"Would delete extra entry /roles/old.json (purge is on)",
	}, events)
	assert.Equal(t, []string{"old"}, env.srv.Keys("roles"))

	_, err = upload(t, env, "/roles/*", copyto.Options{Depth: copyto.Unlimited, Purge: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, env.srv.Keys("roles"))
}

func TestUploadCompactJSONTwice(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t, map[string]string{
		"roles/web.json": `{"name":"web","description":"x"}`,
		"roles/db.json":  `{"description":"y"}`,
	})
	opts := copyto.Options{Depth: copyto.Unlimited, Purge: true}

	events, err := upload(t, env, "/roles/*", opts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Created /roles/web.json", "Created /roles/db.json"}, events)

	// the remote reads back indented, but holds the same objects
	events, err = upload(t, env, "/roles/*", opts)
	require.NoError(t, err)
	assert.Empty(t, events)

	env.srv.Put("roles", "web", map[string]any{"name": "web", "description": "changed"})
	events, err = upload(t, env, "/roles/*", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Updated /roles/web.json"}, events)
}

func TestUploadRejectsMismatchedIdentity(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t, map[string]string{
		"roles/web.json": `{"name":"db"}`,
		"roles/db.json":  `{"name":"db"}`,
	})

	events, err := upload(t, env, "/roles/*", unlimited)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Name in remote/roles/web.json must be 'web' (is 'db')")
	// the valid sibling is still copied
	assert.Equal(t, []string{"Created /roles/db.json"}, events)
	assert.Equal(t, []string{"db"}, env.srv.Keys("roles"))
}

func TestRemoteRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t, map[string]string{"roles/web.json": webRole})
	env.srv.Put("roles", "web", map[string]any{
		"name":        "web",
		"description": "web servers",
		"run_list":    []any{"recipe[apache]"},
	})
	env.srv.FailNext(http.StatusServiceUnavailable, http.StatusBadGateway)

	assert.Empty(t, nameStatus(t, env, "/roles/web.json"))
}

func TestExactPathMissingEverywhere(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t, nil)
	_, err := diff.Collect(context.Background(), pattern.MustNew("/roles/nope.json"), env.remote(t), env.local(t),
		diff.Options{Depth: diff.Unlimited})
	require.Error(t, err)
	assert.True(t, treefs.IsNotFound(err))

	_, err = upload(t, env, "/roles/nope.json", unlimited)
	assert.Error(t, err)
}
