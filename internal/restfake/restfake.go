// Package restfake is an in-memory JSON repository served over HTTP, speaking
// the API the restfs adapter consumes. Tests start one per case.
package restfake

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
)

// Request is a request the server received.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

type pkgVersion struct {
	version string
	files   map[string]string // path -> content
}

// Server serves collections of JSON objects, collections of collections and
// versioned packages.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	collections map[string]map[string]map[string]any // api path -> key -> object
	nested      map[string]bool                      // api paths whose keys are collections
	packages    map[string]map[string][]pkgVersion   // api path -> package -> versions
	blobs       map[string][]byte                    // checksum -> content
	requests    []Request
	failures    []int
	lost        []int
}

func NewServer() *Server {
	s := &Server{
		collections: map[string]map[string]map[string]any{},
		nested:      map[string]bool{},
		packages:    map[string]map[string][]pkgVersion{},
		blobs:       map[string][]byte{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// NewDefaultServer serves empty collections at the api paths of the default remote layout.
func NewDefaultServer() *Server {
	s := NewServer()
	for _, p := range []string{"clients", "environments", "nodes", "roles"} {
		s.AddCollection(p)
	}
	s.AddNested("data")
	s.AddPackageCollection("cookbooks")
	return s
}

// AddPackageCollection creates an empty packages collection at apiPath.
func (s *Server) AddPackageCollection(apiPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.packages[apiPath] == nil {
		s.packages[apiPath] = map[string][]pkgVersion{}
	}
}

// AddCollection creates an empty object collection at apiPath.
func (s *Server) AddCollection(apiPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[apiPath]; !ok {
		s.collections[apiPath] = map[string]map[string]any{}
	}
}

// AddNested creates an empty collection of collections at apiPath.
func (s *Server) AddNested(apiPath string) {
	s.AddCollection(apiPath)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nested[apiPath] = true
}

// Put stores obj under key in the collection at apiPath, creating the
// collection and, for nested parents, the intermediate entry.
func (s *Server) Put(apiPath, key string, obj map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if parent := path.Dir(apiPath); s.nested[parent] {
		s.ensure(parent)[path.Base(apiPath)] = map[string]any{"name": path.Base(apiPath)}
	}
	s.ensure(apiPath)[key] = obj
}

// Object returns a copy of the stored object, nil if absent.
func (s *Server) Object(apiPath, key string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.collections[apiPath][key]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// Keys lists the keys of the collection at apiPath in sorted order.
func (s *Server) Keys(apiPath string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.collections[apiPath])
}

// AddPackage publishes a version of a package in the packages collection at apiPath.
func (s *Server) AddPackage(apiPath, name, version string, files map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.packages[apiPath] == nil {
		s.packages[apiPath] = map[string][]pkgVersion{}
	}
	s.packages[apiPath][name] = append(s.packages[apiPath][name], pkgVersion{version: version, files: files})
	for _, content := range files {
		s.blobs[Checksum([]byte(content))] = []byte(content)
	}
}

// Versions lists the published versions of a package.
func (s *Server) Versions(apiPath, name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, v := range s.packages[apiPath][name] {
		out = append(out, v.version)
	}
	return out
}

// FailNext makes the next requests fail with the given statuses, in order.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

// LoseNext makes the next requests take effect but answer with the given
// statuses, in order, as if their responses were lost.
func (s *Server) LoseNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lost = append(s.lost, statuses...)
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Checksum is the digest the server publishes for content.
func Checksum(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

func (s *Server) ensure(apiPath string) map[string]map[string]any {
	c, ok := s.collections[apiPath]
	if !ok {
		c = map[string]map[string]any{}
		s.collections[apiPath] = c
	}
	return c
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	p := strings.Trim(r.URL.Path, "/")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: "/" + p, Header: r.Header.Clone(), Body: body})
	if len(s.failures) > 0 {
		status := s.failures[0]
		s.failures = s.failures[1:]
		http.Error(w, http.StatusText(status), status)
		return
	}
	if len(s.lost) > 0 {
		status := s.lost[0]
		s.lost = s.lost[1:]
		s.route(httptest.NewRecorder(), r, p, body)
		http.Error(w, http.StatusText(status), status)
		return
	}
	s.route(w, r, p, body)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request, p string, body []byte) {
	if strings.HasPrefix(p, "blobs/") {
		s.serveBlob(w, r, strings.TrimPrefix(p, "blobs/"))
		return
	}
	for apiPath := range s.packages {
		if p == apiPath || strings.HasPrefix(p, apiPath+"/") {
			s.servePackages(w, r, apiPath, strings.TrimPrefix(strings.TrimPrefix(p, apiPath), "/"))
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		if c, ok := s.collections[p]; ok {
			listing := map[string]string{}
			for _, k := range sortedKeys(c) {
				listing[k] = s.URL + "/" + p + "/" + k
			}
			writeJSON(w, http.StatusOK, listing)
			return
		}
		if obj, ok := s.collections[path.Dir(p)][path.Base(p)]; ok {
			writeJSON(w, http.StatusOK, obj)
			return
		}
	case http.MethodPost:
		c, ok := s.collections[p]
		if !ok {
			break
		}
		var obj map[string]any
		if err := json.Unmarshal(body, &obj); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		key, _ := obj["name"].(string)
		if s.nested[path.Dir(p)] {
			key, _ = obj["id"].(string)
		}
		if key == "" {
			http.Error(w, "missing name", http.StatusBadRequest)
			return
		}
		if _, exists := c[key]; exists {
			http.Error(w, "already exists", http.StatusConflict)
			return
		}
		c[key] = obj
		if s.nested[p] {
			s.ensure(p + "/" + key)
		}
		writeJSON(w, http.StatusCreated, map[string]string{"uri": s.URL + "/" + p + "/" + key})
		return
	case http.MethodPut:
		c, ok := s.collections[path.Dir(p)]
		if _, exists := c[path.Base(p)]; ok && exists {
			var obj map[string]any
			if err := json.Unmarshal(body, &obj); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			c[path.Base(p)] = obj
			writeJSON(w, http.StatusOK, obj)
			return
		}
	case http.MethodDelete:
		c, ok := s.collections[path.Dir(p)]
		if _, exists := c[path.Base(p)]; ok && exists {
			obj := c[path.Base(p)]
			delete(c, path.Base(p))
			delete(s.collections, p)
			writeJSON(w, http.StatusOK, obj)
			return
		}
		if _, ok := s.collections[p]; ok {
			delete(s.collections, p)
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func (s *Server) servePackages(w http.ResponseWriter, r *http.Request, apiPath, rest string) {
	pkgs := s.packages[apiPath]
	parts := strings.Split(rest, "/")
	switch {
	case rest == "" && r.Method == http.MethodGet:
		type version struct {
			Version string `json:"version"`
		}
		index := map[string]map[string][]version{}
		for name, versions := range pkgs {
			vs := []version{}
			for _, v := range versions {
				vs = append(vs, version{Version: v.version})
			}
			index[name] = map[string][]version{"versions": vs}
		}
		writeJSON(w, http.StatusOK, index)
		return
	case len(parts) == 2:
		versions := pkgs[parts[0]]
		for i, v := range versions {
			if v.version != parts[1] {
				continue
			}
			switch r.Method {
			case http.MethodGet:
				type file struct {
					Path     string `json:"path"`
					Checksum string `json:"checksum"`
					URL      string `json:"url"`
				}
				files := []file{}
				for _, fp := range sortedKeys(v.files) {
					sum := Checksum([]byte(v.files[fp]))
					files = append(files, file{Path: fp, Checksum: sum, URL: s.URL + "/blobs/" + sum})
				}
				writeJSON(w, http.StatusOK, map[string]any{"files": files})
				return
			case http.MethodDelete:
				pkgs[parts[0]] = append(versions[:i:i], versions[i+1:]...)
				if len(pkgs[parts[0]]) == 0 {
					delete(pkgs, parts[0])
				}
				writeJSON(w, http.StatusOK, map[string]any{})
				return
			}
		}
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func (s *Server) serveBlob(w http.ResponseWriter, r *http.Request, sum string) {
	data, ok := s.blobs[sum]
	if !ok || r.Method != http.MethodGet {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
