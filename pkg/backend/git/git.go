// Package git syncs folders with a remote git repository.
package git

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	gogit "gopkg.in/src-d/go-git.v4"
	gitconfig "gopkg.in/src-d/go-git.v4/config"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/plumbing/storer"
	"gopkg.in/src-d/go-git.v4/plumbing/transport"
	"gopkg.in/src-d/go-git.v4/utils/merkletrie"

	"github.com/sidkik/orangeshare/pkg/backend"
	"github.com/sidkik/orangeshare/pkg/changeset"
	"github.com/sidkik/orangeshare/pkg/errors"
)

// Name is the name the backend is registered under.
const Name = "git"

const (
	remoteName   = "origin"
	branch       = "master"
	unsyncedFile = "has_unsynced_changes"
)

var fs = afero.NewOsFs()

func init() {
	backend.Register(Name, New)
}

// Backend syncs a folder that's a git repository. Uploads commit every local
// change and push it. Downloads only fast forward.
type Backend struct {
	localPath string
	remoteURL string
	user      changeset.User
	folder    changeset.Folder
	log       *log.Entry

	repo *gogit.Repository

	lock   sync.Mutex
	events backend.Events
}

// New opens the repository at opts.LocalPath. If there isn't a repository
// yet, opts.RemoteURL is cloned so that the folder shares its history with
// every other machine. An empty remote is initialized locally instead.
func New(opts backend.Options) (backend.Backend, error) {
	if opts.RemoteURL == nil {
		return nil, errors.MissingFieldError{Field: "url"}
	}
	if opts.Log == nil {
		opts.Log = log.WithField("backend", Name)
	}

	repo, err := gogit.PlainOpen(opts.LocalPath)
	if err == gogit.ErrRepositoryNotExists {
		repo, err = cloneRepo(opts.LocalPath, opts.RemoteURL.String(), opts.Log)
	}
	if err != nil {
		return nil, errors.WithContext(err, "open repository")
	}

	return &Backend{
		localPath: opts.LocalPath,
		remoteURL: opts.RemoteURL.String(),
		user:      opts.User,
		folder: changeset.Folder{
			Name:          filepath.Base(opts.LocalPath),
			RemoteAddress: opts.RemoteURL,
		},
		log:  opts.Log,
		repo: repo,
	}, nil
}

func cloneRepo(path, remoteURL string, ctxLog *log.Entry) (*gogit.Repository, error) {
	ctxLog.WithField("remote", remoteURL).Info("Cloning remote")
	repo, err := gogit.PlainClone(path, false, &gogit.CloneOptions{
		URL:        remoteURL,
		RemoteName: remoteName,
	})
	switch {
	case err == nil:
		return repo, nil
	case err == transport.ErrEmptyRemoteRepository:
		ctxLog.Info("Remote is empty. Initializing a new repository")
		return initRepo(path, remoteURL)
	default:
		// A failed clone into a non-empty directory leaves .git behind, which
		// would be opened as an unrelated repository next time.
		if rmErr := fs.RemoveAll(filepath.Join(path, ".git")); rmErr != nil {
			ctxLog.WithError(rmErr).Warn("Failed to clean up partial clone")
		}
		return nil, errors.WithContext(err, "clone")
	}
}

// initRepo creates a repository whose origin is `remoteURL`. A failed clone
// may have already created both.
func initRepo(path, remoteURL string) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpen(path)
	if err == gogit.ErrRepositoryNotExists {
		repo, err = gogit.PlainInit(path, false)
	}
	if err != nil {
		return nil, errors.WithContext(err, "init")
	}

	if _, err := repo.Remote(remoteName); err == nil {
		return repo, nil
	} else if err != gogit.ErrRemoteNotFound {
		return nil, errors.WithContext(err, "get remote")
	}

	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: remoteName,
		URLs: []string{remoteURL},
	})
	if err != nil {
		return nil, errors.WithContext(err, "create remote")
	}
	return repo, nil
}

// SetEvents implements backend.Reporter.
func (b *Backend) SetEvents(events backend.Events) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.events = events
}

// ComputeIdentifier hashes the root commit, which is the same for every
// clone of the repository. Repositories without commits are identified by
// their remote.
func (b *Backend) ComputeIdentifier() (string, error) {
	root, err := b.rootCommit()
	if err != nil {
		return "", errors.WithContext(err, "find root commit")
	}

	if root == "" {
		return sha1Hex(b.remoteURL), nil
	}
	return sha1Hex(root), nil
}

func (b *Backend) rootCommit() (string, error) {
	head, err := b.repo.Head()
	if err == plumbing.ErrReferenceNotFound {
		return "", nil
	} else if err != nil {
		return "", err
	}

	commits, err := b.repo.Log(&gogit.LogOptions{From: head.Hash()})
	if err != nil {
		return "", err
	}
	defer commits.Close()

	var root string
	err = commits.ForEach(func(c *object.Commit) error {
		if c.NumParents() == 0 {
			root = c.Hash.String()
			return storer.ErrStop
		}
		return nil
	})
	return root, err
}

// CurrentRevision returns the hash of HEAD.
func (b *Backend) CurrentRevision() string {
	head, err := b.repo.Head()
	if err != nil {
		if err != plumbing.ErrReferenceNotFound {
			b.log.WithError(err).Warn("Failed to get HEAD")
		}
		return ""
	}
	return head.Hash().String()
}

// HasLocalChanges returns whether the worktree is dirty.
func (b *Backend) HasLocalChanges() bool {
	status, err := b.status()
	if err != nil {
		b.log.WithError(err).Warn("Failed to get worktree status")
		return false
	}
	return !status.IsClean()
}

// HasRemoteChanges fetches the remote, and compares its branch with HEAD.
func (b *Backend) HasRemoteChanges() bool {
	if err := b.fetch(); err != nil {
		b.log.WithError(err).Debug("Failed to fetch")
		return false
	}

	remoteRef, err := b.repo.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		return false
	}
	return remoteRef.Hash().String() != b.CurrentRevision()
}

// HasUnsyncedChanges returns whether the last upload failed. The flag is
// kept inside the .git directory so that it survives restarts.
func (b *Backend) HasUnsyncedChanges() bool {
	exists, err := afero.Exists(fs, b.unsyncedPath())
	return err == nil && exists
}

// SetHasUnsyncedChanges sets the flag returned by HasUnsyncedChanges.
func (b *Backend) SetHasUnsyncedChanges(unsynced bool) {
	var err error
	if unsynced {
		err = afero.WriteFile(fs, b.unsyncedPath(), []byte("1"), 0644)
	} else if exists, _ := afero.Exists(fs, b.unsyncedPath()); exists {
		err = fs.Remove(b.unsyncedPath())
	}
	if err != nil {
		b.log.WithError(err).Warn("Failed to update unsynced changes flag")
	}
}

func (b *Backend) unsyncedPath() string {
	return filepath.Join(b.localPath, ".git", unsyncedFile)
}

// SyncUp commits all local changes and pushes them.
func (b *Backend) SyncUp() bool {
	if _, err := b.commit(); err != nil {
		b.log.WithError(err).Warn("Failed to commit")
		return false
	}

	err := b.repo.Push(&gogit.PushOptions{
		RemoteName: remoteName,
		Progress:   b.progressWriter(),
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		b.log.WithError(err).Warn("Failed to push")
		return false
	}
	b.reportDone()
	return true
}

// SyncDown fast forwards to the remote branch. Diverged histories aren't
// merged, so they make the download fail.
func (b *Backend) SyncDown() bool {
	wt, err := b.repo.Worktree()
	if err != nil {
		b.log.WithError(err).Warn("Failed to open worktree")
		return false
	}

	err = wt.Pull(&gogit.PullOptions{
		RemoteName:    remoteName,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		Progress:      b.progressWriter(),
	})
	switch err {
	case nil, gogit.NoErrAlreadyUpToDate, transport.ErrEmptyRemoteRepository:
		b.reportDone()
		return true
	case gogit.ErrNonFastForwardUpdate:
		b.log.Warn("Local and remote histories have diverged")
		return false
	default:
		b.log.WithError(err).Warn("Failed to pull")
		return false
	}
}

// ExcludePaths implements backend.Backend.
func (b *Backend) ExcludePaths() []string {
	return []string{".git"}
}

func (b *Backend) fetch() error {
	err := b.repo.Fetch(&gogit.FetchOptions{RemoteName: remoteName})
	if err == gogit.NoErrAlreadyUpToDate || err == transport.ErrEmptyRemoteRepository {
		return nil
	}
	return err
}

func (b *Backend) status() (gogit.Status, error) {
	wt, err := b.repo.Worktree()
	if err != nil {
		return nil, errors.WithContext(err, "open worktree")
	}
	return wt.Status()
}

// commit stages and commits every change in the worktree. It returns false
// if there was nothing to commit.
func (b *Backend) commit() (bool, error) {
	wt, err := b.repo.Worktree()
	if err != nil {
		return false, errors.WithContext(err, "open worktree")
	}

	status, err := wt.Status()
	if err != nil {
		return false, errors.WithContext(err, "status")
	}
	if status.IsClean() {
		return false, nil
	}

	var paths []string
	for path := range status {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var message []string
	for _, path := range paths {
		fileStatus := status[path]
		switch {
		case fileStatus.Worktree == gogit.Deleted:
			if _, err := wt.Remove(path); err != nil {
				return false, errors.WithContext(err, "remove "+path)
			}
			message = append(message, fmt.Sprintf("- '%s'", path))
		case fileStatus.Worktree == gogit.Untracked || fileStatus.Staging == gogit.Added:
			if _, err := wt.Add(path); err != nil {
				return false, errors.WithContext(err, "add "+path)
			}
			message = append(message, fmt.Sprintf("+ '%s'", path))
		default:
			if _, err := wt.Add(path); err != nil {
				return false, errors.WithContext(err, "add "+path)
			}
			message = append(message, fmt.Sprintf("/ '%s'", path))
		}
	}

	_, err = wt.Commit(strings.Join(message, "\n"), &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  b.user.Name,
			Email: b.user.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return false, errors.WithContext(err, "commit")
	}
	return true, nil
}

// ChangeSets reads the last `count` commits.
func (b *Backend) ChangeSets(count int) ([]changeset.ChangeSet, error) {
	head, err := b.repo.Head()
	if err == plumbing.ErrReferenceNotFound {
		return nil, nil
	} else if err != nil {
		return nil, errors.WithContext(err, "get HEAD")
	}

	commits, err := b.repo.Log(&gogit.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, errors.WithContext(err, "log")
	}
	defer commits.Close()

	var changeSets []changeset.ChangeSet
	err = commits.ForEach(func(c *object.Commit) error {
		if len(changeSets) >= count {
			return storer.ErrStop
		}

		cs, err := b.toChangeSet(c)
		if err != nil {
			return errors.WithContext(err, "read commit "+c.Hash.String())
		}
		changeSets = append(changeSets, cs)
		return nil
	})
	return changeSets, err
}

func (b *Backend) toChangeSet(c *object.Commit) (changeset.ChangeSet, error) {
	cs := changeset.ChangeSet{
		User:      changeset.User{Name: c.Author.Name, Email: c.Author.Email},
		Folder:    b.folder,
		Revision:  c.Hash.String(),
		Timestamp: c.Author.When,
		RemoteURL: b.folder.RemoteAddress,
	}
	if cs.User.Name == "" {
		cs.User = changeset.UnknownUser
	}

	tree, err := c.Tree()
	if err != nil {
		return cs, errors.WithContext(err, "get tree")
	}

	if c.NumParents() == 0 {
		err := tree.Files().ForEach(func(f *object.File) error {
			cs.Added = append(cs.Added, f.Name)
			return nil
		})
		return cs, err
	}

	parent, err := c.Parent(0)
	if err != nil {
		return cs, errors.WithContext(err, "get parent")
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return cs, errors.WithContext(err, "get parent tree")
	}

	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return cs, errors.WithContext(err, "diff")
	}

	// go-git doesn't detect renames, so a deleted file whose contents were
	// added under another name counts as a move.
	deleted := map[plumbing.Hash]string{}
	var inserted []*object.Change
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			return cs, errors.WithContext(err, "get change action")
		}

		switch action {
		case merkletrie.Insert:
			inserted = append(inserted, change)
		case merkletrie.Delete:
			deleted[change.From.TreeEntry.Hash] = change.From.Name
		case merkletrie.Modify:
			cs.Edited = append(cs.Edited, change.To.Name)
		}
	}

	for _, change := range inserted {
		if from, ok := deleted[change.To.TreeEntry.Hash]; ok {
			cs.AddMove(from, change.To.Name)
			delete(deleted, change.To.TreeEntry.Hash)
			continue
		}
		cs.Added = append(cs.Added, change.To.Name)
	}
	for _, path := range deleted {
		cs.Deleted = append(cs.Deleted, path)
	}
	sort.Strings(cs.Deleted)
	return cs.Unique(), nil
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
