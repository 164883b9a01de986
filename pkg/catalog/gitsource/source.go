// Package gitsource reads rule catalogs from a git repository, so catalog
// changes can be reviewed and rolled back like code.
package gitsource

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
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"mercator-hq/claimaudit/pkg/catalog"
)

// ErrNotOpened is returned when the source is used before Open succeeds.
var ErrNotOpened = errors.New("git catalog source not opened")

// Config describes where the catalog lives.
type Config struct {
	// URL is the remote to clone. Empty means LocalPath must already be a repository.
	URL string

	// Branch to clone and pull (default: main).
	Branch string

	// LocalPath is the working copy location.
	LocalPath string

	// Path is the catalog file relative to the repository root (default: catalog.yaml).
	Path string

	// Token is sent as HTTP basic auth password when set.
	Token string

	// Timeout bounds clone and pull (default: 30s).
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.Path == "" {
		c.Path = "catalog.yaml"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Source loads catalogs from one repository.
type Source struct {
	cfg  Config
	mu   sync.Mutex
	repo *gogit.Repository
}

// New creates a source. Call Open before loading.
func New(cfg Config) (*Source, error) {
	if cfg.LocalPath == "" {
		return nil, fmt.Errorf("gitsource: local path cannot be empty")
	}
	cfg.applyDefaults()
	return &Source{cfg: cfg}, nil
}

// Open opens the working copy, cloning it first when it does not exist.
func (s *Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(filepath.Join(s.cfg.LocalPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(s.cfg.LocalPath)
		if err != nil {
			return fmt.Errorf("failed to open repository: %w", err)
		}
		s.repo = repo
		return nil
	}
	if s.cfg.URL == "" {
		return fmt.Errorf("gitsource: %s is not a repository and no URL is configured", s.cfg.LocalPath)
	}

	if err := os.MkdirAll(s.cfg.LocalPath, 0o755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}
	cloneCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, s.cfg.LocalPath, false, &gogit.CloneOptions{
		URL:           s.cfg.URL,
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          s.auth(),
	})
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", s.cfg.URL, err)
	}
	s.repo = repo
	return nil
}

// Pull fetches the configured branch and reports whether HEAD moved.
func (s *Source) Pull(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return false, ErrNotOpened
	}
	before, err := s.repo.Head()
	if err != nil {
		return false, fmt.Errorf("failed to read HEAD: %w", err)
	}
	wt, err := s.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	err = wt.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		Auth:          s.auth(),
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return false, fmt.Errorf("failed to pull: %w", err)
	}

	after, err := s.repo.Head()
	if err != nil {
		return false, fmt.Errorf("failed to read HEAD: %w", err)
	}
	return before.Hash() != after.Hash(), nil
}

// Head returns the commit hash HEAD points at.
func (s *Source) Head() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil {
		return "", ErrNotOpened
	}
	ref, err := s.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// Load parses the catalog file as committed at rev. An empty rev means HEAD.
// The file is read from the object store, so uncommitted edits are ignored.
func (s *Source) Load(rev string) (*catalog.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return nil, ErrNotOpened
	}
	if rev == "" {
		rev = "HEAD"
	}
	hash, err := s.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", rev, err)
	}
	commit, err := s.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", hash, err)
	}
	file, err := commit.File(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog %s not found at %s: %w", s.cfg.Path, hash.String()[:7], err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.cfg.Path, err)
	}

	source := fmt.Sprintf("git:%s@%s", s.cfg.Path, hash.String()[:7])
	return catalog.Parse([]byte(contents), source)
}

func (s *Source) auth() transport.AuthMethod {
	if s.cfg.Token == "" {
		return nil
	}
	return &http.BasicAuth{Username: "claimaudit", Password: s.cfg.Token}
}
