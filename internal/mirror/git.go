package mirror

import (
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	httpgit "github.com/go-git/go-git/v5/plumbing/transport/http"
	gossh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"

	"github.com/dogmahub/dogma/internal/credential"
	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

// isSSHURL reports whether remote uses the ssh:// scheme or the
// git@host:path SCP-like shorthand, following the same check the
// teacher's internal/_teacherref/ssh.Is performs against a parsed URL —
// reproduced here without that package's giturls dependency, which this
// module doesn't otherwise need.
func isSSHURL(remote string) bool {
	if strings.HasPrefix(remote, "ssh://") {
		return true
	}
	at := strings.Index(remote, "@")
	colon := strings.Index(remote, ":")
	return at >= 0 && colon > at && !strings.Contains(remote[:colon], "://")
}

// buildAuth constructs a transport.AuthMethod for remote from cred,
// mirroring internal/_teacherref/gitcloner/cloner.go's
// createAuthFromOpts dispatch (SSH key first, then username/password;
// GitHub App auth is out of scope here since no credential kind models
// it, see DESIGN.md).
func buildAuth(remote string, cred credential.Credential, knownHosts []byte) (transport.AuthMethod, error) {
	switch cred.Type {
	case credential.KindSSHKey:
		if !isSSHURL(remote) {
			return nil, dogmaerrors.New(dogmaerrors.InvalidPush, "SSH credential %s used against non-SSH remote %s", cred.ID, remote)
		}
		auth, err := gossh.NewPublicKeys(cred.Username, []byte(cred.SSHKey), cred.Passphrase)
		if err != nil {
			return nil, dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "parsing SSH key for credential %s", cred.ID)
		}
		if len(knownHosts) > 0 {
			cb, err := knownHostsCallback(knownHosts)
			if err != nil {
				return nil, dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "building known_hosts callback")
			}
			auth.HostKeyCallback = cb
		} else {
			auth.HostKeyCallback = ssh.InsecureIgnoreHostKey()
		}
		return auth, nil
	case credential.KindPassword:
		return &httpgit.BasicAuth{Username: cred.Username, Password: cred.Password}, nil
	case credential.KindToken:
		return &httpgit.BasicAuth{Username: "x-access-token", Password: cred.Token}, nil
	case credential.KindNone, "":
		return nil, nil
	default:
		return nil, dogmaerrors.New(dogmaerrors.InvalidPush, "unsupported credential type %s", cred.Type)
	}
}

// knownHostsCallback adapts internal/_teacherref/ssh.CreateKnownHostsCallBack's
// temp-file idiom (go-git's known_hosts verifier only reads from a path,
// not an in-memory blob) without that file's Kubernetes secret lookup.
func knownHostsCallback(knownHosts []byte) (ssh.HostKeyCallback, error) {
	f, err := os.CreateTemp("", "dogma-known-hosts")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())
	defer f.Close()
	if _, err := f.Write(knownHosts); err != nil {
		return nil, err
	}
	return gossh.NewKnownHostsCallback(f.Name())
}

// cloneOrFetch ensures workdir holds a checkout of remote's branch,
// cloning fresh if workdir is empty and fetching + resetting otherwise,
// following the plain-clone idiom in
// internal/_teacherref/gitcloner/cloner.go's cloneBranch.
func cloneOrFetch(workdir, remote, branch string, auth transport.AuthMethod) (*git.Repository, error) {
	if _, err := os.Stat(workdir); os.IsNotExist(err) {
		repo, err := git.PlainClone(workdir, false, &git.CloneOptions{
			URL:           remote,
			Auth:          auth,
			SingleBranch:  true,
			ReferenceName: plumbing.NewBranchReferenceName(branch),
		})
		if err != nil {
			return nil, dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "cloning %s", remote)
		}
		return repo, nil
	}

	repo, err := git.PlainOpen(workdir)
	if err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "opening workdir %s", workdir)
	}
	w, err := repo.Worktree()
	if err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "opening worktree %s", workdir)
	}
	err = w.Pull(&git.PullOptions{Auth: auth, SingleBranch: true, ReferenceName: plumbing.NewBranchReferenceName(branch), Force: true})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return nil, dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "fetching %s", remote)
	}
	return repo, nil
}
