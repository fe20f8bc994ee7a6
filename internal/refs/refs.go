// Package refs implements the Bookmark and Tag stores (spec.md §4.7):
// mutable, possibly remote-qualified named pointers (bookmarks) and
// immutable named pointers (tags), with the validation rules spec.md
// requires. Grounded on the teacher's internal/syncbranch branch-name
// validation (branchNamePattern, rejection of "..", leading/trailing
// slashes) generalized to bookmark names.
package refs

import (
	"regexp"
	"sort"
	"strings"

	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/types"
)

var invalidBookmarkChars = regexp.MustCompile(`[\s*~^:?\[\]\\]`)

// ValidateBookmarkName enforces spec.md §4.7's exhaustive rule set.
func ValidateBookmarkName(name string) error {
	if name == "" {
		return jjgerr.New(jjgerr.KindInvalidBookmarkName, "bookmark name must not be empty")
	}
	if invalidBookmarkChars.MatchString(name) {
		return jjgerr.New(jjgerr.KindInvalidBookmarkName, "bookmark name contains whitespace or a reserved character")
	}
	if strings.Contains(name, "..") {
		return jjgerr.New(jjgerr.KindInvalidBookmarkName, "bookmark name must not contain '..'")
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return jjgerr.New(jjgerr.KindInvalidBookmarkName, "bookmark name must not start or end with '.'")
	}
	if strings.HasSuffix(name, ".lock") {
		return jjgerr.New(jjgerr.KindInvalidBookmarkName, "bookmark name must not end with '.lock'")
	}
	if strings.Contains(name, "//") {
		return jjgerr.New(jjgerr.KindInvalidBookmarkName, "bookmark name must not contain '//'")
	}
	return nil
}

// BookmarkStore holds local and remote bookmarks.
type BookmarkStore struct {
	Local  map[string]string            `json:"local"`
	Remote map[string]map[string]string `json:"remote"`
}

// NewBookmarkStore returns an empty store.
func NewBookmarkStore() *BookmarkStore {
	return &BookmarkStore{
		Local:  make(map[string]string),
		Remote: make(map[string]map[string]string),
	}
}

// Set creates a local bookmark. Fails if the name already exists.
func (s *BookmarkStore) Set(name, target string) error {
	if err := ValidateBookmarkName(name); err != nil {
		return err
	}
	if _, exists := s.Local[name]; exists {
		return jjgerr.New(jjgerr.KindBookmarkExists, "bookmark already exists: "+name)
	}
	s.Local[name] = target
	return nil
}

// Move updates an existing local bookmark. Fails if it does not exist.
func (s *BookmarkStore) Move(name, target string) error {
	if _, exists := s.Local[name]; !exists {
		return jjgerr.New(jjgerr.KindBookmarkNotFound, "bookmark not found: "+name)
	}
	s.Local[name] = target
	return nil
}

// Delete removes a local bookmark.
func (s *BookmarkStore) Delete(name string) error {
	if _, exists := s.Local[name]; !exists {
		return jjgerr.New(jjgerr.KindBookmarkNotFound, "bookmark not found: "+name)
	}
	delete(s.Local, name)
	return nil
}

// Get looks up a local bookmark target.
func (s *BookmarkStore) Get(name string) (string, bool) {
	target, ok := s.Local[name]
	return target, ok
}

// SetRemote records/updates a remote-qualified bookmark, as done on fetch.
func (s *BookmarkStore) SetRemote(remote, name, target string) {
	if s.Remote[remote] == nil {
		s.Remote[remote] = make(map[string]string)
	}
	s.Remote[remote][name] = target
}

// List returns every bookmark, local and remote, flattened.
func (s *BookmarkStore) List() []types.Bookmark {
	var out []types.Bookmark
	for name, target := range s.Local {
		out = append(out, types.Bookmark{Name: name, Target: target})
	}
	for remote, names := range s.Remote {
		for name, target := range names {
			out = append(out, types.Bookmark{Name: name, Target: target, Remote: remote})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName() < out[j].QualifiedName() })
	return out
}

// TagStore holds immutable name -> change-id mappings.
type TagStore struct {
	Tags map[string]string `json:"tags"`
}

// NewTagStore returns an empty store.
func NewTagStore() *TagStore {
	return &TagStore{Tags: make(map[string]string)}
}

// Create adds a new tag. Fails on duplicate name.
func (s *TagStore) Create(name, changeID string) error {
	if name == "" {
		return jjgerr.New(jjgerr.KindInvalidTagName, "tag name must not be empty")
	}
	if _, exists := s.Tags[name]; exists {
		return jjgerr.New(jjgerr.KindTagExists, "tag already exists: "+name)
	}
	s.Tags[name] = changeID
	return nil
}

// Delete removes a tag.
func (s *TagStore) Delete(name string) error {
	if _, exists := s.Tags[name]; !exists {
		return jjgerr.New(jjgerr.KindTagNotFound, "tag not found: "+name)
	}
	delete(s.Tags, name)
	return nil
}

// Get looks up a tag's target change-id.
func (s *TagStore) Get(name string) (string, bool) {
	target, ok := s.Tags[name]
	return target, ok
}

// List returns tags matching pattern (a simple glob; empty matches all),
// sorted by name.
func (s *TagStore) List(pattern string) []types.Tag {
	var out []types.Tag
	for name, id := range s.Tags {
		if pattern != "" {
			if ok, _ := matchSimpleGlob(pattern, name); !ok {
				continue
			}
		}
		out = append(out, types.Tag{Name: name, ChangeID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// matchSimpleGlob implements the '*' glob of TagStore.List (and so of
// the tags() revset filter): '*' matches any run of characters,
// including '/'.
func matchSimpleGlob(pattern, name string) (bool, error) {
	return matchGlobSegment(pattern, name), nil
}

func matchGlobSegment(pattern, s string) bool {
	// '*' matches any run of characters; '/' is not treated specially.
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(s, parts[i])
		if idx < 0 {
			return false
		}
		s = s[idx+len(parts[i]):]
	}
	last := parts[len(parts)-1]
	return strings.HasSuffix(s, last)
}
