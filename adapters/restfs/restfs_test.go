package restfs

import (
	"context"
	"net/http"
	"testing"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/internal/restfake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot(t *testing.T, srv *restfake.Server) *Root {
	t.Helper()
	root, err := New(config.Remote{URL: srv.URL, Timeout: 5}, noWait())
	require.NoError(t, err)
	return root
}

func childNames(t *testing.T, n treefs.Node) []string {
	t.Helper()
	children, err := n.Children(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(children))
	for _, c := range children {
		out = append(out, c.Name())
	}
	return out
}

func exists(t *testing.T, n treefs.Node) bool {
	t.Helper()
	ok, err := n.Exists(context.Background())
	require.NoError(t, err)
	return ok
}

func TestRoot(t *testing.T) {
	t.Parallel()

	srv := restfake.NewDefaultServer()
	defer srv.Close()
	root := newTestRoot(t, srv)

	assert.Equal(t, []string{"clients", "cookbooks", "data_bags", "environments", "nodes", "roles"}, childNames(t, root))
	assert.Equal(t, "remote/roles", root.Child("roles").PrintablePath())
	assert.True(t, treefs.IsNonexistent(root.Child("bogus")))

	assert.True(t, root.CanHaveChild("roles", true))
	assert.False(t, root.CanHaveChild("roles", false))
	assert.False(t, root.CanHaveChild("bogus", true))

	var notAllowed *treefs.OperationNotAllowedError
	assert.ErrorAs(t, root.Delete(context.Background(), true), &notAllowed)
}

func TestNew_InvalidCollections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		desc        string
		collections []config.Collection
	}{
		{"unknown kind", []config.Collection{{Name: "x", Kind: "weird"}}},
		{"missing name", []config.Collection{{APIPath: "x", Kind: config.KindObjects}}},
		{"duplicate", []config.Collection{{Name: "x", Kind: config.KindObjects}, {Name: "x", Kind: config.KindNested}}},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := New(config.Remote{URL: "http://repo.test", Collections: tt.collections})
			assert.Error(t, err)
		})
	}

	_, err := New(config.Remote{URL: "ftp://repo.test"})
	assert.Error(t, err)
}

func TestObjects_ListAndRead(t *testing.T) {
	t.Parallel()

	srv := restfake.NewDefaultServer()
	defer srv.Close()
	srv.Put("roles", "web", map[string]any{"name": "web", "run_list": []any{"a<b"}, "description": "front"})
	srv.Put("roles", "db", map[string]any{"name": "db"})
	root := newTestRoot(t, srv)
	roles := root.Child("roles")

	assert.Equal(t, []string{"db.json", "web.json"}, childNames(t, roles))

	data, err := roles.Child("web.json").Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"description\": \"front\",\n  \"name\": \"web\",\n  \"run_list\": [\n    \"a<b\"\n  ]\n}\n", string(data))
	assert.Equal(t, treefs.ContentTypeJSON, roles.Child("web.json").ContentType())
}

func TestObjects_ExistsUsesListing(t *testing.T) {
	t.Parallel()

	srv := restfake.NewDefaultServer()
	defer srv.Close()
	srv.Put("roles", "web", map[string]any{"name": "web"})
	roles := newTestRoot(t, srv).Child("roles")

	assert.True(t, exists(t, roles.Child("web.json")))
	assert.False(t, exists(t, roles.Child("nope.json")))
	assert.True(t, treefs.IsNonexistent(roles.Child("web.txt")))
	assert.Len(t, srv.Requests(), 1, "one listing serves every probe")

	_, err := roles.Child("nope.json").Read(context.Background())
	assert.True(t, treefs.IsNotFound(err))
}

func TestObjects_Write(t *testing.T) {
	t.Parallel()

	srv := restfake.NewDefaultServer()
	defer srv.Close()
	srv.Put("roles", "web", map[string]any{"name": "web"})
	web := newTestRoot(t, srv).Child("roles").Child("web.json")
	ctx := context.Background()

	require.NoError(t, web.Write(ctx, []byte(`{"name":"web","description":"new"}`)))
	assert.Equal(t, map[string]any{"name": "web", "description": "new"}, srv.Object("roles", "web"))

	require.NoError(t, web.Write(ctx, []byte(`{"description":"no name"}`)))
	assert.Equal(t, "web", srv.Object("roles", "web")["name"], "a missing identity is filled in")

	err := web.Write(ctx, []byte(`{"name":"other"}`))
	var failed *treefs.OperationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, err.Error(), "Name in remote/roles/web.json must be 'web' (is 'other')")

	err = web.Write(ctx, []byte(`not json`))
	assert.ErrorAs(t, err, &failed)

	err = newTestRoot(t, srv).Child("roles").Child("gone.json").Write(ctx, []byte(`{}`))
	assert.True(t, treefs.IsNotFound(err))
}

func TestObjects_CanonicalMatchesRead(t *testing.T) {
	t.Parallel()

	srv := restfake.NewDefaultServer()
	defer srv.Close()
	srv.Put("roles", "web", map[string]any{"name": "web"})
	web := newTestRoot(t, srv).Child("roles").Child("web.json")
	ctx := context.Background()

	compact := []byte(`{"run_list":["recipe[a]"],"description":"d"}`)
	require.NoError(t, web.Write(ctx, compact))

	canon, err := web.(treefs.Canonicalizer).Canonical(compact)
	require.NoError(t, err)
	read, err := newTestRoot(t, srv).Child("roles").Child("web.json").Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(read), string(canon))
	assert.Equal(t, "{\n  \"description\": \"d\",\n  \"name\": \"web\",\n  \"run_list\": [\n    \"recipe[a]\"\n  ]\n}\n", string(canon))

	_, err = web.(treefs.Canonicalizer).Canonical([]byte(`{"name":"other"}`))
	assert.Error(t, err)
}

func TestObjects_CreateAndDelete(t *testing.T) {
	t.Parallel()

	srv := restfake.NewDefaultServer()
	defer srv.Close()
	roles := newTestRoot(t, srv).Child("roles")
	creator := roles.(treefs.ChildCreator)
	ctx := context.Background()

	created, err := creator.CreateFile(ctx, "web.json", []byte(`{"description":"d"}`))
	require.NoError(t, err)
	assert.True(t, exists(t, created))
	assert.Equal(t, map[string]any{"name": "web", "description": "d"}, srv.Object("roles", "web"))

	_, err = creator.CreateFile(ctx, "web.json", []byte(`{}`))
	var failed *treefs.OperationFailedError
	assert.ErrorAs(t, err, &failed)

	_, err = creator.CreateFile(ctx, "web.txt", []byte(`{}`))
	var notAllowed *treefs.OperationNotAllowedError
	assert.ErrorAs(t, err, &notAllowed)
	_, err = creator.CreateDir(ctx, "sub")
	assert.ErrorAs(t, err, &notAllowed)
	assert.False(t, roles.(treefs.ChildValidator).CanHaveChild("sub", true))

	require.NoError(t, created.Delete(ctx, false))
	assert.Empty(t, srv.Keys("roles"))
	assert.True(t, treefs.IsNotFound(created.Delete(ctx, false)))

	assert.ErrorAs(t, roles.Delete(ctx, true), &notAllowed)
}

func TestObjects_CreateWithLostResponse(t *testing.T) {
	t.Parallel()

	srv := restfake.NewDefaultServer()
	defer srv.Close()
	root, err := New(config.Remote{URL: srv.URL, Timeout: 5, MaxRetries: 2}, noWait())
	require.NoError(t, err)
	roles := root.Child("roles")
	ctx := context.Background()

	srv.LoseNext(http.StatusGatewayTimeout)
	created, err := roles.(treefs.ChildCreator).CreateFile(ctx, "web.json", []byte(`{"name":"web"}`))
	require.NoError(t, err)
	assert.True(t, exists(t, created))
	assert.Equal(t, map[string]any{"name": "web"}, srv.Object("roles", "web"))
}

func TestNested(t *testing.T) {
	t.Parallel()

	srv := restfake.NewDefaultServer()
	defer srv.Close()
	srv.Put("data/users", "alice", map[string]any{"id": "alice", "shell": "zsh"})
	root := newTestRoot(t, srv)
	bags := root.Child("data_bags")
	ctx := context.Background()

	assert.Equal(t, []string{"users"}, childNames(t, bags))
	assert.Equal(t, []string{"alice.json"}, childNames(t, bags.Child("users")))
	assert.False(t, exists(t, bags.Child("missing")))
	assert.True(t, bags.(treefs.ChildValidator).CanHaveChild("anything", true))

	err := bags.Child("users").Child("alice.json").Write(ctx, []byte(`{"id":"bob"}`))
	assert.Contains(t, err.Error(), "Name in remote/data_bags/users/alice.json must be 'alice' (is 'bob')")

	bag, err := bags.(treefs.ChildCreator).CreateDir(ctx, "groups")
	require.NoError(t, err)
	_, err = bag.(treefs.ChildCreator).CreateFile(ctx, "admins.json", []byte(`{"members":["alice"]}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "admins", "members": []any{"alice"}}, srv.Object("data/groups", "admins"))

	fresh := newTestRoot(t, srv).Child("data_bags")
	assert.Equal(t, []string{"groups", "users"}, childNames(t, fresh))

	assert.True(t, treefs.IsMustDeleteRecursively(fresh.Child("users").Delete(ctx, false)))
	require.NoError(t, fresh.Child("users").Delete(ctx, true))
	assert.Equal(t, []string{"groups"}, srv.Keys("data"))
	assert.False(t, exists(t, newTestRoot(t, srv).Child("data_bags").Child("users")))
}

func TestPackages(t *testing.T) {
	t.Parallel()

	srv := restfake.NewDefaultServer()
	defer srv.Close()
	srv.AddPackage("cookbooks", "apache", "1.9.0", map[string]string{"metadata.rb": "old"})
	srv.AddPackage("cookbooks", "apache", "1.10.0", map[string]string{
		"metadata.rb":         "name 'apache'",
		"recipes/default.rb":  "package 'httpd'",
		"templates/a/b.erb":   "<%= x %>",
	})
	srv.AddPackage("cookbooks", "apache", "not-a-version", map[string]string{"metadata.rb": "bad"})
	root := newTestRoot(t, srv)
	cookbooks := root.Child("cookbooks")
	ctx := context.Background()

	assert.Equal(t, []string{"apache"}, childNames(t, cookbooks))
	apache := cookbooks.Child("apache")
	assert.True(t, exists(t, apache))
	assert.Equal(t, []string{"metadata.rb", "recipes", "templates"}, childNames(t, apache))
	assert.Equal(t, []string{"a"}, childNames(t, apache.Child("templates")))
	assert.Equal(t, "/cookbooks/apache/templates/a/b.erb", treefs.ResolvePath(root, "/cookbooks/apache/templates/a/b.erb").Path())

	meta := apache.Child("metadata.rb")
	data, err := meta.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "name 'apache'", string(data), "the highest version is shown")

	sum, err := treefs.ChecksumOf(ctx, meta)
	require.NoError(t, err)
	assert.Equal(t, restfake.Checksum([]byte("name 'apache'")), sum)

	isDir, err := apache.Child("recipes").IsDir(ctx)
	require.NoError(t, err)
	assert.True(t, isDir)
	assert.False(t, exists(t, apache.Child("nope")))
	assert.False(t, exists(t, cookbooks.Child("nginx")))

	var notAllowed *treefs.OperationNotAllowedError
	assert.ErrorAs(t, meta.Write(ctx, []byte("x")), &notAllowed)
	assert.ErrorAs(t, meta.Delete(ctx, false), &notAllowed)
	assert.False(t, cookbooks.(treefs.ChildValidator).CanHaveChild("nginx", true))
	assert.False(t, apache.(treefs.ChildValidator).CanHaveChild("x.rb", false))

	assert.True(t, treefs.IsMustDeleteRecursively(apache.Delete(ctx, false)))
	require.NoError(t, apache.Delete(ctx, true))
	assert.Equal(t, []string{"1.9.0", "not-a-version"}, srv.Versions("cookbooks", "apache"))
}

func TestCustomCollections(t *testing.T) {
	t.Parallel()

	srv := restfake.NewServer()
	defer srv.Close()
	srv.Put("v1/widgets", "w1", map[string]any{"slug": "w1"})

	root, err := New(config.Remote{
		URL: srv.URL,
		Collections: []config.Collection{
			{Name: "widgets", APIPath: "v1/widgets", Kind: config.KindObjects, Identity: "slug"},
		},
	}, noWait())
	require.NoError(t, err)

	assert.Equal(t, []string{"widgets"}, childNames(t, root))
	assert.Equal(t, []string{"w1.json"}, childNames(t, root.Child("widgets")))
	err = root.Child("widgets").Child("w1.json").Write(context.Background(), []byte(`{"slug":"w2"}`))
	assert.Contains(t, err.Error(), "must be 'w1' (is 'w2')")
}

func TestProvider(t *testing.T) {
	t.Parallel()

	srv := restfake.NewDefaultServer()
	defer srv.Close()

	root, err := Provider{}.NewRoot([]byte(`{"type":"rest","url":"` + srv.URL + `","collections":[{"name":"r","api_path":"roles","kind":"objects"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"r"}, childNames(t, root))

	_, err = Provider{}.NewRoot([]byte(`{"type":"rest","url":"nope"}`))
	assert.Error(t, err)
}
