// Package testscripts wires the Repository Facade into rsc.io/script so
// that spec scenarios can be expressed as plain text scripts instead of
// Go call sequences — the same role cmd/go's own script engine plays for
// exercising package behavior end to end without a process boundary.
// There is no CLI in this module (SPEC_FULL §1: "a library, not a CLI"),
// so each command below opens the repository fresh from the script's
// current directory, performs one facade call, and persists before
// returning — the same lifecycle a CLI frontend would drive.
package testscripts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rsc.io/script"

	"github.com/untoldecay/jjg/internal/conflict"
	"github.com/untoldecay/jjg/internal/gitbackend"
	"github.com/untoldecay/jjg/internal/repo"
	"github.com/untoldecay/jjg/internal/revset"
	"github.com/untoldecay/jjg/internal/types"
)

var defaultUser = types.OperationUser{Name: "script", Email: "script@example.com", Hostname: "testscripts"}

// signature builds an author/committer identity for a new change,
// letting a script impersonate a different author via the JJGUSER/
// JJGMAIL environment variables (spec.md §8 scenario 5 needs two
// distinct authors to exercise author()).
func signature(s *script.State) types.Signature {
	name := s.Getenv("JJGUSER")
	if name == "" {
		name = defaultUser.Name
	}
	mail := s.Getenv("JJGMAIL")
	if mail == "" {
		mail = defaultUser.Email
	}
	return types.Signature{Name: name, Email: mail}
}

// openRepo loads the repository at the script's working directory and
// wires it to the same git-CLI-backed commit store jjginit set up, so
// every mutation through the facade synthesizes a real commit-id
// (spec.md §4.8) instead of leaving it at the zero sentinel.
func openRepo(s *script.State) (*repo.Repo, error) {
	r, err := repo.Open(s.Getwd(), defaultUser)
	if err != nil {
		return nil, err
	}
	r.AttachBackend(gitbackend.New(s.Getwd()))
	return r, nil
}

// resolveRev evaluates a revset expression against the live repository
// and requires it to name exactly one change, the same contract a CLI
// revision argument has (spec.md §4.3).
func resolveRev(r *repo.Repo, expr string) (string, error) {
	ev := &revset.Evaluator{
		Graph:           r.Graph,
		Bookmarks:       r.Bookmarks,
		Tags:            r.Tags,
		WorkingCopyID:   r.WC.State.ChangeID,
		CurrentUserMail: r.User.Email,
	}
	ids, err := ev.Eval(expr)
	if err != nil {
		return "", err
	}
	if len(ids) != 1 {
		return "", fmt.Errorf("revset %q resolved to %d changes, want exactly 1", expr, len(ids))
	}
	return ids[0], nil
}

// syncCmd wraps a command body into script's Run/WaitFunc shape: every
// command here is synchronous, so Run does the work immediately and
// the returned WaitFunc just replays the captured result.
func syncCmd(usage script.CmdUsage, body func(*script.State, []string) (string, error)) script.Cmd {
	return script.Command(usage, func(s *script.State, args ...string) (script.WaitFunc, error) {
		out, err := body(s, args)
		return func(*script.State) (string, string, error) {
			if err != nil {
				return out, err.Error() + "\n", err
			}
			return out, "", nil
		}, nil
	})
}

// Cmds returns the custom command set. Merge with script.DefaultCmds()
// to keep the built-in file/env assertions (exists, cmp, env) alongside
// these repository operations.
func Cmds() map[string]script.Cmd {
	return map[string]script.Cmd{
		"jjginit": syncCmd(script.CmdUsage{
			Summary: "initialize a repository in the working directory",
		}, func(s *script.State, args []string) (string, error) {
			dir := s.Getwd()
			if _, err := repo.Init(dir, defaultUser); err != nil {
				return "", err
			}
			gb := gitbackend.New(dir)
			if err := gb.Init(context.Background(), "main"); err != nil {
				return "", err
			}
			if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(repo.DirName+"/\n"), 0o644); err != nil {
				return "", err
			}
			return "", nil
		}),

		"jjgnew": syncCmd(script.CmdUsage{
			Summary: "create a new change on top of a revset, binding its id to a variable",
			Args:    "var parent-revset message...",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) < 3 {
				return "", fmt.Errorf("usage: jjgnew var parent-revset message...")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			parent, err := resolveRev(r, args[1])
			if err != nil {
				return "", err
			}
			c, err := r.New(context.Background(), []string{parent}, strings.Join(args[2:], " "), signature(s))
			if err != nil {
				return "", err
			}
			s.Setenv(args[0], c.ChangeID)
			return c.ChangeID + "\n", nil
		}),

		"jjgdescribe": syncCmd(script.CmdUsage{
			Summary: "rewrite a change's description",
			Args:    "revset message...",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) < 2 {
				return "", fmt.Errorf("usage: jjgdescribe revset message...")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			id, err := resolveRev(r, args[0])
			if err != nil {
				return "", err
			}
			_, err = r.Describe(context.Background(), id, strings.Join(args[1:], " "))
			return "", err
		}),

		"jjgamend": syncCmd(script.CmdUsage{
			Summary: "fold the working-copy snapshot into a change, binding the (stable) change-id",
			Args:    "var revset",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) != 2 {
				return "", fmt.Errorf("usage: jjgamend var revset")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			id, err := resolveRev(r, args[1])
			if err != nil {
				return "", err
			}
			c, err := r.Amend(context.Background(), id)
			if err != nil {
				return "", err
			}
			s.Setenv(args[0], c.ChangeID)
			return c.ChangeID + "\n", nil
		}),

		"jjgsplit": syncCmd(script.CmdUsage{
			Summary: "split a change in two along a comma-separated set of kept paths",
			Args:    "var1 var2 revset first-message second-message keep-paths",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) != 6 {
				return "", fmt.Errorf("usage: jjgsplit var1 var2 revset first-message second-message keep-paths")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			id, err := resolveRev(r, args[2])
			if err != nil {
				return "", err
			}
			keep := strings.Split(args[5], ",")
			first, second, err := r.Split(context.Background(), id, keep, args[3], args[4])
			if err != nil {
				return "", err
			}
			s.Setenv(args[0], first.ChangeID)
			s.Setenv(args[1], second.ChangeID)
			return first.ChangeID + "\n" + second.ChangeID + "\n", nil
		}),

		"jjgsquash": syncCmd(script.CmdUsage{
			Summary: "fold a change into its parent",
			Args:    "var revset message...",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) < 2 {
				return "", fmt.Errorf("usage: jjgsquash var revset message...")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			id, err := resolveRev(r, args[1])
			if err != nil {
				return "", err
			}
			c, err := r.Squash(context.Background(), id, strings.Join(args[2:], " "))
			if err != nil {
				return "", err
			}
			s.Setenv(args[0], c.ChangeID)
			return c.ChangeID + "\n", nil
		}),

		"jjgabandon": syncCmd(script.CmdUsage{
			Summary: "abandon a change, reparenting its children",
			Args:    "revset",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) != 1 {
				return "", fmt.Errorf("usage: jjgabandon revset")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			id, err := resolveRev(r, args[0])
			if err != nil {
				return "", err
			}
			return "", r.Abandon(context.Background(), id)
		}),

		"jjgrebase": syncCmd(script.CmdUsage{
			Summary: "rebase a change onto a new parent",
			Args:    "revset new-parent-revset",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) != 2 {
				return "", fmt.Errorf("usage: jjgrebase revset new-parent-revset")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			id, err := resolveRev(r, args[0])
			if err != nil {
				return "", err
			}
			newParent, err := resolveRev(r, args[1])
			if err != nil {
				return "", err
			}
			_, err = r.Rebase(context.Background(), id, []string{newParent})
			return "", err
		}),

		"jjgedit": syncCmd(script.CmdUsage{
			Summary: "move the working copy onto an existing change",
			Args:    "revset",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) != 1 {
				return "", fmt.Errorf("usage: jjgedit revset")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			id, err := resolveRev(r, args[0])
			if err != nil {
				return "", err
			}
			return "", r.Edit(context.Background(), id)
		}),

		"jjgmerge": syncCmd(script.CmdUsage{
			Summary: "create a merge change from two revsets",
			Args:    "var revset-a revset-b message...",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) < 4 {
				return "", fmt.Errorf("usage: jjgmerge var revset-a revset-b message...")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			a, err := resolveRev(r, args[1])
			if err != nil {
				return "", err
			}
			b, err := resolveRev(r, args[2])
			if err != nil {
				return "", err
			}
			c, err := r.Merge(context.Background(), []string{a, b}, strings.Join(args[3:], " "), signature(s))
			if err != nil {
				return "", err
			}
			s.Setenv(args[0], c.ChangeID)
			return c.ChangeID + "\n", nil
		}),

		"jjgundo": syncCmd(script.CmdUsage{
			Summary: "undo the most recent operation",
		}, func(s *script.State, args []string) (string, error) {
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			_, err = r.Undo()
			return "", err
		}),

		"jjgbookmark": syncCmd(script.CmdUsage{
			Summary: "set, move, or delete a bookmark",
			Args:    "set|move|delete name [revset]",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) < 2 {
				return "", fmt.Errorf("usage: jjgbookmark set|move|delete name [revset]")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			switch args[0] {
			case "set", "move":
				if len(args) != 3 {
					return "", fmt.Errorf("usage: jjgbookmark %s name revset", args[0])
				}
				id, err := resolveRev(r, args[2])
				if err != nil {
					return "", err
				}
				if args[0] == "set" {
					return "", r.SetBookmark(args[1], id)
				}
				return "", r.MoveBookmark(args[1], id)
			case "delete":
				return "", r.DeleteBookmark(args[1])
			default:
				return "", fmt.Errorf("unknown jjgbookmark action %q", args[0])
			}
		}),

		"jjgtag": syncCmd(script.CmdUsage{
			Summary: "create or delete a tag",
			Args:    "create|delete name [revset]",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) < 2 {
				return "", fmt.Errorf("usage: jjgtag create|delete name [revset]")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			switch args[0] {
			case "create":
				if len(args) != 3 {
					return "", fmt.Errorf("usage: jjgtag create name revset")
				}
				id, err := resolveRev(r, args[2])
				if err != nil {
					return "", err
				}
				return "", r.CreateTag(args[1], id)
			case "delete":
				return "", r.DeleteTag(args[1])
			default:
				return "", fmt.Errorf("unknown jjgtag action %q", args[0])
			}
		}),

		"jjgresolve": syncCmd(script.CmdUsage{
			Summary: "resolve an active conflict by taking one side",
			Args:    "path ours|theirs|union",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) != 2 {
				return "", fmt.Errorf("usage: jjgresolve path ours|theirs|union")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			id, ok := r.Conflicts.ByPath(args[0])
			if !ok {
				return "", fmt.Errorf("no active conflict at %s", args[0])
			}
			c, _ := r.Conflicts.Get(id)
			content, resolution, err := conflict.ApplyStrategy(c, conflict.Strategy(args[1]))
			if err != nil {
				return "", err
			}
			return "", r.ResolveConflict(id, content, resolution)
		}),

		"jjgconflicts": syncCmd(script.CmdUsage{
			Summary: "list active conflict paths, one per line",
		}, func(s *script.State, args []string) (string, error) {
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			var b strings.Builder
			for _, c := range r.Conflicts.Unresolved() {
				b.WriteString(c.Path)
				b.WriteByte('\n')
			}
			return b.String(), nil
		}),

		"jjgdoctor": syncCmd(script.CmdUsage{
			Summary: "print ok, or one line per integrity issue",
		}, func(s *script.State, args []string) (string, error) {
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			report := r.Doctor()
			if report.Healthy() {
				return "ok\n", nil
			}
			var b strings.Builder
			for _, issue := range report.Issues {
				b.WriteString(issue)
				b.WriteByte('\n')
			}
			return b.String(), nil
		}),

		"jjglog": syncCmd(script.CmdUsage{
			Summary: "evaluate a revset expression, printing one change-id per line",
			Args:    "expr",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) != 1 {
				return "", fmt.Errorf("usage: jjglog expr")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			ev := &revset.Evaluator{
				Graph:           r.Graph,
				Bookmarks:       r.Bookmarks,
				Tags:            r.Tags,
				WorkingCopyID:   r.WC.State.ChangeID,
				CurrentUserMail: r.User.Email,
			}
			ids, err := ev.Eval(args[0])
			if err != nil {
				return "", err
			}
			var b strings.Builder
			for _, id := range ids {
				b.WriteString(id)
				b.WriteByte('\n')
			}
			return b.String(), nil
		}),

		"jjgcommitid": syncCmd(script.CmdUsage{
			Summary: "print a change's current commit-id",
			Args:    "revset",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) != 1 {
				return "", fmt.Errorf("usage: jjgcommitid revset")
			}
			r, err := openRepo(s)
			if err != nil {
				return "", err
			}
			id, err := resolveRev(r, args[0])
			if err != nil {
				return "", err
			}
			return r.Graph.Get(id).CommitID + "\n", nil
		}),

		"jjgassertequal": syncCmd(script.CmdUsage{
			Summary: "fail unless two strings are equal",
			Args:    "a b",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) != 2 {
				return "", fmt.Errorf("usage: jjgassertequal a b")
			}
			if args[0] != args[1] {
				return "", fmt.Errorf("expected %q == %q", args[0], args[1])
			}
			return "", nil
		}),

		"jjgassertnotequal": syncCmd(script.CmdUsage{
			Summary: "fail unless two strings differ",
			Args:    "a b",
		}, func(s *script.State, args []string) (string, error) {
			if len(args) != 2 {
				return "", fmt.Errorf("usage: jjgassertnotequal a b")
			}
			if args[0] == args[1] {
				return "", fmt.Errorf("expected %q != %q", args[0], args[1])
			}
			return "", nil
		}),
	}
}
