// Package git keeps the history of the data directory in a git repository.
//
// It uses go-git so no git binary is needed on the server.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Author identifies who made a change.
type Author struct {
	Name  string
	Email string
}

// Repo is the data directory as a git repository.
type Repo struct {
	dir          string
	defaultName  string
	defaultEmail string
	tracked      []string
	repo         *gogit.Repository
	mu           sync.Mutex
}

// Open opens the repository in dir, initializing it if needed.
//
// tracked lists the files and directories, relative to dir, that commits
// record. On first run it creates .gitignore and commits what exists.
func Open(ctx context.Context, dir, defaultName, defaultEmail string, tracked ...string) (*Repo, error) {
	if defaultName == "" {
		defaultName = "bibdb"
	}
	if defaultEmail == "" {
		defaultEmail = "bibdb@localhost"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		repo, err = gogit.PlainInit(dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open git repo: %w", err)
	}
	r := &Repo{
		dir:          dir,
		defaultName:  defaultName,
		defaultEmail: defaultEmail,
		tracked:      tracked,
		repo:         repo,
	}
	if err := r.ensureGitignore(); err != nil {
		return nil, err
	}
	if _, err := repo.Head(); errors.Is(err, plumbing.ErrReferenceNotFound) {
		if err := r.commit(ctx, Author{}, "initial commit", true, ".gitignore"); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read HEAD: %w", err)
	}
	return r, nil
}

// Commit stages the tracked paths and commits them. It is a no-op when
// nothing changed.
func (r *Repo) Commit(ctx context.Context, author Author, msg string) error {
	return r.commit(ctx, author, msg, false)
}

func (r *Repo) commit(ctx context.Context, author Author, msg string, allowEmpty bool, extra ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Detach from HTTP request context but keep a timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, p := range append(extra, r.tracked...) {
		if _, err := os.Stat(filepath.Join(r.dir, p)); err != nil {
			continue
		}
		if _, err := w.Add(p); err != nil {
			return fmt.Errorf("failed to stage %s: %w", p, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if !allowEmpty && !hasStaged(status) {
		return nil
	}
	name := author.Name
	email := author.Email
	if name == "" {
		name = r.defaultName
	}
	if email == "" {
		email = r.defaultEmail
	}
	now := time.Now()
	_, err = w.Commit(msg, &gogit.CommitOptions{
		AllowEmptyCommits: allowEmpty,
		Author:            &object.Signature{Name: name, Email: email, When: now},
		Committer:         &object.Signature{Name: r.defaultName, Email: r.defaultEmail, When: now},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// hasStaged reports whether the index differs from HEAD. Untracked files do
// not count.
func hasStaged(s gogit.Status) bool {
	for _, fs := range s {
		if fs.Staging != gogit.Unmodified && fs.Staging != gogit.Untracked {
			return true
		}
	}
	return false
}

// CommitCount returns the total number of commits in the repository.
func (r *Repo) CommitCount() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	iter, err := r.repo.Log(&gogit.LogOptions{})
	if err != nil {
		return 0, nil // no commits yet is not an error
	}
	defer iter.Close()
	n := 0
	err = iter.ForEach(func(*object.Commit) error {
		n++
		return nil
	})
	return n, err
}

// LastMessage returns the message of the HEAD commit.
func (r *Repo) LastMessage() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, err := r.repo.Head()
	if err != nil {
		return "", err
	}
	c, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return "", err
	}
	return c.Message, nil
}

// ensureGitignore creates .gitignore in the data dir if it doesn't exist.
func (r *Repo) ensureGitignore() error {
	path := filepath.Join(r.dir, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(".env\n*.mmdb\n"), 0o644); err != nil { //nolint:gosec // G306: data dir gitignore
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}
	return nil
}
