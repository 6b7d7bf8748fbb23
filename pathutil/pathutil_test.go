package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		parts []string
		want  string
	}{
		{nil, ""},
		{[]string{""}, "/"},
		{[]string{"/"}, "/"},
		{[]string{"/", "a"}, "/a"},
		{[]string{"", "a", "b"}, "/a/b"},
		{[]string{"a", "b"}, "a/b"},
		{[]string{"a/", "/b/"}, "a/b"},
		{[]string{"remote/", "x"}, "remote/x"},
		{[]string{"/tmp/repo", "", "x"}, "/tmp/repo/x"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Join(tt.parts...), "Join(%q)", tt.parts)
	}
}

func TestSplit(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Split(""))
	assert.Empty(t, Split("/"))
	assert.Equal(t, []string{"a", "b"}, Split("/a//b/"))
	assert.Equal(t, []string{"a"}, Split("a"))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", "/"},
		{"abc/", "abc"},
		{"abc//def", "abc/def"},
		{"abc/./def", "abc/def"},
		{"abc/../def", "def"},
		{"abc/def/../..", ""},
		{"/abc/def/../..", "/"},
		{"../abc", "../abc"},
		{"../../abc/..", "../.."},
		{"/../abc", "/abc"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestDirAndBase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/", Dir("/a"))
	assert.Equal(t, "/a", Dir("/a/b"))
	assert.Equal(t, "", Dir("a"))
	assert.Equal(t, "a", Dir("a/b"))
	assert.Equal(t, "/", Dir("/"))

	assert.Equal(t, "b", Base("/a/b"))
	assert.Equal(t, "", Base("/"))
}

func TestHasPrefix(t *testing.T) {
	t.Parallel()

	assert.True(t, HasPrefix("/a/b", "/a"))
	assert.True(t, HasPrefix("/a", "/a"))
	assert.True(t, HasPrefix("/a", "/"))
	assert.False(t, HasPrefix("/ab", "/a"))
	assert.False(t, HasPrefix("/a", "/a/b"))
}
