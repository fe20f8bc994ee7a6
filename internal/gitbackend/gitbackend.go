// Package gitbackend is a git-CLI-backed implementation of
// backend.CommitStore (spec.md §6's external collaborator interface),
// used by this module's own tests and testscripts as a realistic stand-in
// for "a real commit-object store" rather than a hand-rolled fake.
// Grounded on the teacher's internal/git.WorktreeManager, which drives
// git exclusively through os/exec (never a cgo git library), generalized
// from worktree/sparse-checkout lifecycle management down to the plain
// init/add/commit/ref plumbing a CommitStore needs.
package gitbackend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/untoldecay/jjg/backend"
	"github.com/untoldecay/jjg/internal/jjgerr"
)

// Store drives a git repository checked out at Dir through the git CLI.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir. dir must already exist.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...) // #nosec G204 -- args are fixed verbs plus caller-supplied refs/messages, not a shell
	cmd.Dir = s.Dir
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return "", jjgerr.Wrap(jjgerr.KindBackendSyncFailed, fmt.Sprintf("git %s: %s", strings.Join(args, " "), errBuf.String()), err)
	}
	return strings.TrimSpace(out.String()), nil
}

// Init runs "git init" with the given default branch name.
func (s *Store) Init(ctx context.Context, defaultBranch string) error {
	_, err := s.run(ctx, "init", "--initial-branch="+defaultBranch, ".")
	return err
}

// StageAll runs "git add -A".
func (s *Store) StageAll(ctx context.Context) error {
	_, err := s.run(ctx, "add", "-A")
	return err
}

// CreateCommit stages the current index into a commit whose parents are
// req.Parents, using git's low-level commit-tree plumbing so the parent
// list is explicit rather than inferred from HEAD.
func (s *Store) CreateCommit(ctx context.Context, req backend.CommitRequest) (string, error) {
	tree, err := s.run(ctx, "write-tree")
	if err != nil {
		return "", err
	}
	args := []string{"commit-tree", tree}
	for _, p := range req.Parents {
		args = append(args, "-p", p)
	}
	args = append(args, "-m", req.Message)
	cmd := exec.CommandContext(ctx, "git", args...) // #nosec G204
	cmd.Dir = s.Dir
	cmd.Env = append(cmd.Env,
		"GIT_AUTHOR_NAME="+req.Author.Name, "GIT_AUTHOR_EMAIL="+req.Author.Email,
		"GIT_COMMITTER_NAME="+req.Committer.Name, "GIT_COMMITTER_EMAIL="+req.Committer.Email,
	)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return "", jjgerr.Wrap(jjgerr.KindBackendSyncFailed, "git commit-tree: "+errBuf.String(), err)
	}
	return strings.TrimSpace(out.String()), nil
}

// ListRefs runs "git for-each-ref" under prefix.
func (s *Store) ListRefs(ctx context.Context, prefix string) ([]backend.RefInfo, error) {
	out, err := s.run(ctx, "for-each-ref", "--format=%(refname) %(objectname)", prefix)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var refs []backend.RefInfo
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		refs = append(refs, backend.RefInfo{Name: fields[0], OID: fields[1]})
	}
	return refs, nil
}

// UpdateRef runs "git update-ref".
func (s *Store) UpdateRef(ctx context.Context, name, oid string) error {
	_, err := s.run(ctx, "update-ref", name, oid)
	return err
}

// Fetch runs "git fetch <remote> <refs...>".
func (s *Store) Fetch(ctx context.Context, opts backend.FetchOptions) error {
	args := append([]string{"fetch", opts.Remote}, opts.Refs...)
	_, err := s.run(ctx, args...)
	return err
}

// Push runs "git push [--force] <remote> <refs...>".
func (s *Store) Push(ctx context.Context, opts backend.PushOptions) error {
	args := []string{"push"}
	if opts.Force {
		args = append(args, "--force")
	}
	args = append(args, opts.Remote)
	args = append(args, opts.Refs...)
	_, err := s.run(ctx, args...)
	return err
}

// Clone runs "git clone <url> <dir>", then repoints Dir at the clone
// destination (opts.Into) for subsequent calls on this Store.
func (s *Store) Clone(ctx context.Context, opts backend.CloneOptions) error {
	args := []string{"clone", opts.URL, opts.Into}
	cmd := exec.CommandContext(ctx, "git", args...) // #nosec G204
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return jjgerr.Wrap(jjgerr.KindBackendSyncFailed, "git clone: "+errBuf.String(), err)
	}
	s.Dir = opts.Into
	return nil
}
