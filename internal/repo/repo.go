// Package repo implements the Repository Facade (spec.md §4.1): the
// single entry point that loads repository state, runs the operation
// pipeline (lock, pre-event, mutate with its backend sync, snapshot of
// the resulting view, record, persist, post-event) around every
// mutation, and owns the repo-wide lock for the duration of each call.
// No snapshot of the working tree is taken before mutate: each
// operation's view holds the state mutate left behind. Grounded on the teacher's
// internal/beads facade (the one type every cmd/bd/*.go command calls
// through, itself composing internal/storage, internal/merge, and
// internal/syncbranch), generalized from an issue tracker facade to a
// change-graph facade.
package repo

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/untoldecay/jjg/backend"
	"github.com/untoldecay/jjg/internal/conflict"
	"github.com/untoldecay/jjg/internal/events"
	"github.com/untoldecay/jjg/internal/graph"
	"github.com/untoldecay/jjg/internal/jjgerr"
	"github.com/untoldecay/jjg/internal/mergedriver"
	"github.com/untoldecay/jjg/internal/objectstore"
	"github.com/untoldecay/jjg/internal/oplog"
	"github.com/untoldecay/jjg/internal/refs"
	"github.com/untoldecay/jjg/internal/repoconfig"
	"github.com/untoldecay/jjg/internal/sync"
	"github.com/untoldecay/jjg/internal/types"
	"github.com/untoldecay/jjg/internal/workingcopy"
)

// Repo is the Repository Facade: the in-memory state of one repository
// plus its storage root, assembled from every other package.
type Repo struct {
	root   string // the working-copy directory (parent of .jjg)
	jjgDir string
	store  *objectstore.Store

	Graph     *graph.Graph
	Oplog     *oplog.Log
	WC        *workingcopy.Tracker
	Bookmarks *refs.BookmarkStore
	Tags      *refs.TagStore
	Conflicts *conflict.Store
	Drivers   *mergedriver.Registry
	Config    repoconfig.Config

	sync   *sync.Middleware
	events *events.Dispatcher

	// Now is overridable for deterministic tests.
	Now  func() time.Time
	User types.OperationUser
}

// Events exposes the dispatcher so callers (e.g. a CLI or a watch
// queue) can register pre/post handlers before running operations.
func (r *Repo) Events() *events.Dispatcher { return r.events }

// Init creates a fresh repository at root: a .jjg directory containing
// an empty graph seeded with the sentinel root change, empty bookmark/
// tag/conflict stores, and an empty operation log.
func Init(root string, user types.OperationUser) (*Repo, error) {
	jjgDir := filepath.Join(root, DirName)
	if _, err := os.Stat(jjgDir); err == nil {
		return nil, jjgerr.New(jjgerr.KindWorkspaceExists, "repository already initialized at "+root)
	}
	store, err := objectstore.New(jjgDir)
	if err != nil {
		return nil, err
	}

	g := graph.New()
	rootChange := types.Change{
		ChangeID: newChangeID(),
		CommitID: types.ZeroCommitID,
		Parents:  nil,
	}
	if err := g.Add(rootChange); err != nil {
		return nil, err
	}

	r := newRepo(root, jjgDir, store, g, user)
	r.WC.State.ChangeID = rootChange.ChangeID
	if err := r.persistAll(); err != nil {
		return nil, err
	}
	if err := r.store.WriteLines(fileOplog, nil); err != nil {
		return nil, err
	}
	return r, nil
}

// Open loads an existing repository at root.
func Open(root string, user types.OperationUser) (*Repo, error) {
	jjgDir := filepath.Join(root, DirName)
	if _, err := os.Stat(jjgDir); err != nil {
		return nil, jjgerr.New(jjgerr.KindWorkspaceNotFound, "not a repository: "+root)
	}
	store, err := objectstore.New(jjgDir)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := store.Copy(fileGraph, &buf); err != nil && !jjgerr.Is(err, jjgerr.KindFileNotFound) {
		return nil, err
	}
	g, err := graph.Load(buf.Bytes(), json.Unmarshal)
	if err != nil {
		return nil, err
	}

	r := newRepo(root, jjgDir, store, g, user)

	var opLines [][]byte
	if err := store.ReadLines(fileOplog, func(line []byte) error {
		opLines = append(opLines, append([]byte(nil), line...))
		return nil
	}); err != nil {
		return nil, err
	}
	l, err := oplog.Load(opLines)
	if err != nil {
		return nil, err
	}
	r.Oplog = l

	if err := loadOrDefault(store, fileBookmarks, r.Bookmarks); err != nil {
		return nil, err
	}
	if err := loadOrDefault(store, fileTags, r.Tags); err != nil {
		return nil, err
	}
	if err := loadOrDefault(store, fileConflicts, r.Conflicts); err != nil {
		return nil, err
	}
	if err := loadOrDefault(store, fileWorkingCopy, &r.WC.State); err != nil {
		return nil, err
	}

	cfg, err := repoconfig.Load(jjgDir)
	if err != nil {
		return nil, err
	}
	r.Config = cfg

	manifest, err := mergedriver.LoadManifest(filepath.Join(jjgDir, fileMergeDrivers))
	if err != nil {
		return nil, err
	}
	if err := manifest.Apply(r.Drivers, map[string]mergedriver.Driver{}, func(path string) ([]byte, error) {
		return os.ReadFile(path) // #nosec G304 -- path comes from the repo's own merge-drivers.toml
	}); err != nil {
		return nil, err
	}

	return r, nil
}

func newRepo(root, jjgDir string, store *objectstore.Store, g *graph.Graph, user types.OperationUser) *Repo {
	return &Repo{
		root:      root,
		jjgDir:    jjgDir,
		store:     store,
		Graph:     g,
		Oplog:     oplog.New(),
		WC:        workingcopy.New(root, "default"),
		Bookmarks: refs.NewBookmarkStore(),
		Tags:      refs.NewTagStore(),
		Conflicts: conflict.NewStore(),
		Drivers:   mergedriver.NewRegistry(),
		Config:    repoconfig.Default(),
		sync:      &sync.Middleware{Graph: g},
		events:    events.New(),
		Now:       time.Now,
		User:      user,
	}
}

// AttachBackend wires a backend.CommitStore so subsequent change
// additions/updates synthesize real commits (spec.md §4.8).
func (r *Repo) AttachBackend(cs backend.CommitStore) {
	r.sync.Store = cs
}

func loadOrDefault(store *objectstore.Store, relPath string, v any) error {
	err := store.ReadJSON(relPath, v)
	if err != nil && jjgerr.Is(err, jjgerr.KindFileNotFound) {
		return nil
	}
	return err
}

// newChangeID mints a 128-bit change-id: a random v4 UUID with its
// hyphens stripped, giving the 32 lowercase hex characters spec.md §2
// requires.
func newChangeID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// persistAll writes every store-backed document to disk. Used by Init
// and by operations that touch most of the stores at once.
func (r *Repo) persistAll() error {
	if err := r.store.WriteJSON(fileGraph, r.Graph.Marshal()); err != nil {
		return err
	}
	if err := r.store.WriteJSON(fileBookmarks, r.Bookmarks); err != nil {
		return err
	}
	if err := r.store.WriteJSON(fileTags, r.Tags); err != nil {
		return err
	}
	if err := r.store.WriteJSON(fileConflicts, r.Conflicts); err != nil {
		return err
	}
	if err := r.store.WriteJSON(fileWorkingCopy, &r.WC.State); err != nil {
		return err
	}
	return nil
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRemoteMap(m map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(m))
	for k, v := range m {
		out[k] = cloneStringMap(v)
	}
	return out
}

func cloneConflicts(s *conflict.Store) map[string]types.Conflict {
	out := make(map[string]types.Conflict, len(s.Conflicts))
	for k, v := range s.Conflicts {
		out[k] = v
	}
	return out
}

// runMutation implements the operation pipeline of spec.md §4.1: it
// holds the repo-wide lock, fires the cancelable pre-event, calls
// mutate, records the resulting Operation (a snapshot of every piece of
// state a later Undo/SnapshotAt must restore, taken once mutate has
// finished so the view always reflects the state mutate leaves behind),
// persists every store, and fires the informational post-event.
func (r *Repo) runMutation(name string, payload any, mutate func() error) (types.Operation, error) {
	unlock, err := r.store.Lock()
	if err != nil {
		return types.Operation{}, err
	}
	defer func() { _ = unlock() }()

	if err := r.events.FirePre(name, payload); err != nil {
		return types.Operation{}, err
	}

	if err := mutate(); err != nil {
		return types.Operation{}, err
	}

	files, err := r.materializeWorkingTree()
	if err != nil {
		return types.Operation{}, err
	}

	view := types.OperationView{
		LocalBookmarks:    cloneStringMap(r.Bookmarks.Local),
		RemoteBookmarks:   cloneRemoteMap(r.Bookmarks.Remote),
		Heads:             r.Graph.VisibleHeads(),
		WorkingCopy:       r.WC.State.ChangeID,
		FileSnapshot:      files,
		ConflictsSnapshot: cloneConflicts(r.Conflicts),
	}
	op, err := r.Oplog.Record(types.Operation{
		Timestamp:   r.Now(),
		User:        r.User,
		Description: name,
		View:        view,
	})
	if err != nil {
		return types.Operation{}, err
	}

	if err := r.persistAll(); err != nil {
		return types.Operation{}, err
	}
	line, err := json.Marshal(op)
	if err != nil {
		return types.Operation{}, jjgerr.Wrap(jjgerr.KindStorageWriteFailed, "marshal operation", err)
	}
	if err := r.store.AppendLine(fileOplog, line); err != nil {
		return types.Operation{}, err
	}

	r.events.FirePost(name, payload)
	return op, nil
}

func (r *Repo) resolveChangeID(id string) (string, error) {
	if id == "@" {
		id = r.WC.State.ChangeID
	}
	if r.Graph.Get(id) == nil {
		return "", jjgerr.New(jjgerr.KindChangeNotFound, "no such change: "+id).WithContext("changeId", id)
	}
	return id, nil
}
