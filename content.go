package treefs

import (
	"path"
	"strings"
)

// ContentType selects how two contents are compared.
type ContentType int

const (
	ContentTypeText ContentType = iota
	ContentTypeJSON
	ContentTypeYAML
)

// Structured reports whether the content can be parsed into maps, lists and scalars.
func (c ContentType) Structured() bool {
	return c == ContentTypeJSON || c == ContentTypeYAML
}

func (c ContentType) String() string {
	switch c {
	case ContentTypeJSON:
		return "json"
	case ContentTypeYAML:
		return "yaml"
	default:
		return "text"
	}
}

// ContentTypeFor infers a content type from a file name extension.
func ContentTypeFor(name string) ContentType {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return ContentTypeJSON
	case ".yaml", ".yml":
		return ContentTypeYAML
	default:
		return ContentTypeText
	}
}
