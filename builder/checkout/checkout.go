// Package checkout is the builder's git checkout collaborator: given a
// remote URL, a commit hash, and an optional fetch token, it produces a
// clean working tree at that commit.
package checkout

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/embj-org/ej/internal/ejerr"
)

// Checkout performs the checkout operation the orchestrator needs before
// running any build/run script.
type Checkout interface {
	// Checkout clones remoteURL into dir and hard-resets to commitHash.
	// fetchToken, if non-empty, is used as the HTTP basic-auth password
	// (user "x-access-token") for private remotes.
	Checkout(dir, remoteURL, commitHash, fetchToken string) error
}

// NoOp leaves dir untouched. Used by standalone mode, where the script's
// working copy is already the operator's local checkout and there is no
// dispatcher-supplied commit to fetch.
type NoOp struct{}

func (NoOp) Checkout(dir, remoteURL, commitHash, fetchToken string) error { return nil }

// GitCheckout is the go-git-backed implementation.
type GitCheckout struct{}

func New() *GitCheckout {
	return &GitCheckout{}
}

func (c *GitCheckout) Checkout(dir, remoteURL, commitHash, fetchToken string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: remove stale checkout dir: %v", ejerr.CheckoutFailed, err)
	}

	opts := &git.CloneOptions{URL: remoteURL}
	if fetchToken != "" {
		opts.Auth = &http.BasicAuth{Username: "x-access-token", Password: fetchToken}
	}

	repo, err := git.PlainClone(dir, false, opts)
	if err != nil {
		return fmt.Errorf("%w: clone %s: %v", ejerr.CheckoutFailed, remoteURL, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("%w: worktree: %v", ejerr.CheckoutFailed, err)
	}

	if err := wt.Checkout(&git.CheckoutOptions{
		Hash:  plumbing.NewHash(commitHash),
		Force: true,
	}); err != nil {
		return fmt.Errorf("%w: checkout %s: %v", ejerr.CheckoutFailed, commitHash, err)
	}

	return nil
}
