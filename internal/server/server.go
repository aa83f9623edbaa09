// Package server wires every spec.md component into one running
// replica: Object Store, Commit Engine, Query Engine, Repository
// Manager, Watch Registry, Replication Log, Session Store, Mirror
// Scheduler, Credential Store, and Meta-Repo Indexer. It owns no
// transport of its own — spec.md's Non-goals exclude an HTTP/REST
// surface, so Server exposes its components as plain Go values for an
// embedder (or a future transport package) to call directly.
package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dogmahub/dogma/internal/commit"
	"github.com/dogmahub/dogma/internal/config"
	"github.com/dogmahub/dogma/internal/coordination"
	"github.com/dogmahub/dogma/internal/credential"
	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/metarepo"
	"github.com/dogmahub/dogma/internal/mirror"
	"github.com/dogmahub/dogma/internal/objectstore"
	"github.com/dogmahub/dogma/internal/pathspec"
	"github.com/dogmahub/dogma/internal/query"
	"github.com/dogmahub/dogma/internal/replication"
	"github.com/dogmahub/dogma/internal/repomanager"
	"github.com/dogmahub/dogma/internal/session"
	"github.com/dogmahub/dogma/internal/types"
	"github.com/dogmahub/dogma/internal/watch"
)

// mirrorAuthor is the commit author the Mirror Syncer pushes under; it
// is also the one author metarepo.Policy exempts from the
// mirror_state.json reserved-path rejection, since the syncer is the
// only component allowed to write that sentinel.
const mirrorAuthor = "dogma-mirror"

// Server holds every long-lived component for one replica process.
type Server struct {
	cfg *config.Config
	log logrus.FieldLogger

	coord   coordination.Store
	engine  *commit.Engine
	watch   *watch.Registry
	manager *repomanager.Manager
	replica *replication.Replica

	sessions        *session.Store
	sweeper         *session.Sweeper
	credentials     *credential.Store
	mirrorScheduler *mirror.Scheduler
	mirrorSyncer    *mirror.Syncer

	mu           sync.Mutex
	queryEngines map[string]*query.Engine
	indexers     map[string]*metarepo.Indexer
}

// New builds every component from cfg but starts nothing; call Run to
// begin the replication replay, leadership campaign, sweeper, and
// mirror scheduler.
func New(cfg *config.Config) (*Server, error) {
	config.Set(cfg)
	log := logrus.StandardLogger()

	coord, err := openCoordination(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:          cfg,
		log:          log,
		coord:        coord,
		queryEngines: map[string]*query.Engine{},
		indexers:     map[string]*metarepo.Indexer{},
	}

	s.engine = commit.New(metarepo.Policy(mirrorAuthor), s.notify)
	s.watch = watch.NewRegistry(s.historyCheck)

	credDir := filepath.Join(cfg.DataDir, "_credentials")
	creds, err := credential.Open(credDir)
	if err != nil {
		return nil, err
	}
	s.credentials = creds

	sessionDir := filepath.Join(cfg.DataDir, "_sessions")
	s.sessions = session.Open(sessionDir)

	manager, err := repomanager.Open(cfg.DataDir, s.engine, s.openRepoStore)
	if err != nil {
		return nil, err
	}
	s.manager = manager
	if err := s.reopenExistingRepositories(); err != nil {
		return nil, err
	}

	applier := combinedApplier(manager, s.engine, s.sessions)
	replica, err := replication.NewReplica(cfg.ReplicaID, coord, applier, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	s.replica = replica

	sweeper, err := session.NewSweeper(s.sessions, cfg.SessionSweepCron, s.isLeader, s.onSessionExpired, log)
	if err != nil {
		return nil, err
	}
	s.sweeper = sweeper

	s.mirrorSyncer = &mirror.Syncer{
		Engine:      s.engine,
		QueryFor:    s.queryEngineFor,
		Credentials: s.credentials,
		WorkdirRoot: filepath.Join(cfg.DataDir, "_mirrors"),
		Author:      mirrorAuthor,
	}
	s.mirrorScheduler = mirror.NewScheduler(s.metaLister(), mirrorWorkers(cfg), cfg.Zone, s.isLeader, mirror.NopListener{}, s.mirrorSyncer.Sync, log)

	return s, nil
}

func mirrorWorkers(cfg *config.Config) int {
	if cfg.MirrorWorkers > 0 {
		return cfg.MirrorWorkers
	}
	return 4
}

func openCoordination(cfg *config.Config) (coordination.Store, error) {
	if len(cfg.CoordinationEndpoints) == 0 {
		return coordination.NewMemStore(), nil
	}
	return coordination.Dial(cfg.CoordinationEndpoints)
}

// Run starts the replication replay/campaign loop, the session sweeper,
// and the mirror scheduler, blocking until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.sweeper.Start()
	defer s.sweeper.Stop()

	s.mirrorScheduler.Start()
	defer s.mirrorScheduler.Stop()

	return s.replica.Run(ctx)
}

func (s *Server) isLeader() bool {
	return s.replica != nil && s.replica.State() == replication.StateLeader
}

// onSessionExpired submits a REMOVE_SESSION command for a session the
// leader's sweeper deleted, so every replica removes it too.
func (s *Server) onSessionExpired(id string) {
	s.log.WithField("session", id).Info("session expired")
	if err := session.SubmitRemove(context.Background(), s.replica, id); err != nil {
		s.log.WithError(err).WithField("session", id).Warn("submitting REMOVE_SESSION")
	}
}

// notify is the Commit Engine's post-push hook: it fans out to the
// Watch Registry and, if the touched repository has a Meta-Repo
// Indexer, to its cache-invalidation hook too.
func (s *Server) notify(repo string, revision int64, touched []string) {
	s.watch.Notify(repo, revision, touched)

	s.mu.Lock()
	ix := s.indexers[repo]
	s.mu.Unlock()
	if ix != nil {
		ix.OnCommit(repo, revision, touched)
	}
}

func (s *Server) historyCheck(repo string, lastKnown int64, pattern *pathspec.Pattern) (int64, bool) {
	qe, err := s.queryEngineFor(repo)
	if err != nil {
		return 0, false
	}
	commits, err := qe.GetHistory(types.Revision(lastKnown+1), types.HeadRevision, pattern)
	if err != nil || len(commits) == 0 {
		return 0, false
	}
	return commits[len(commits)-1].Revision, true
}

// queryEngineFor implements mirror.QueryEngineFor as well as the Watch
// Registry's history-check lookup, so both seams share one registry of
// per-repository Query Engines built as repositories are opened.
func (s *Server) queryEngineFor(repo string) (*query.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qe, ok := s.queryEngines[repo]
	if !ok {
		return nil, dogmaerrors.New(dogmaerrors.NotFound, "repository %s is not registered", repo)
	}
	return qe, nil
}

// metaLister returns a mirror.MirrorLister reading every registered
// repository's /mirrors/*.json, so a single Scheduler drives mirrors
// declared anywhere in the deployment rather than one scheduler per
// project meta-repo.
func (s *Server) metaLister() mirror.MirrorLister {
	return mirror.ListerFunc(func() ([]mirror.Mirror, error) {
		s.mu.Lock()
		indexers := make([]*metarepo.Indexer, 0, len(s.indexers))
		for _, ix := range s.indexers {
			indexers = append(indexers, ix)
		}
		s.mu.Unlock()

		var all []mirror.Mirror
		for _, ix := range indexers {
			m, err := ix.ListMirrors()
			if err != nil {
				return nil, err
			}
			all = append(all, m...)
		}
		return all, nil
	})
}

// openRepoStore is the repomanager.RepoOpener: it provisions a new
// repository's object store shard and wires its Query Engine and
// Meta-Repo Indexer alongside.
func (s *Server) openRepoStore(project, repo string) (*objectstore.Store, error) {
	r := repomanager.Repository{Project: project, Name: repo}
	dir := filepath.Join(s.cfg.DataDir, project, repo, "objects")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "creating repository directory")
	}
	store, err := objectstore.Open(dir, nil)
	if err != nil {
		return nil, err
	}
	s.registerQueryAndIndexer(r.ID(), store)
	return store, nil
}

func (s *Server) registerQueryAndIndexer(repoID string, store *objectstore.Store) {
	qe := query.New(store)
	ix := metarepo.New(qe, repoID)

	s.mu.Lock()
	s.queryEngines[repoID] = qe
	s.indexers[repoID] = ix
	s.mu.Unlock()
}

// reopenExistingRepositories replays openRepoStore for every repository
// the manifest already knows about, so a restarted process rebuilds its
// Query Engine/Indexer maps without re-running CreateRepository (which
// would reject the repository as already existing). Each repository's
// object store is opened independently, so the fan-out runs on the
// compute pool sized by cfg.ComputeWorkers (spec.md section 5) via
// errgroup rather than serially walking every project/repository pair.
func (s *Server) reopenExistingRepositories() error {
	g := new(errgroup.Group)
	g.SetLimit(computeWorkers(s.cfg))

	for _, p := range s.manager.AllProjects() {
		for _, r := range s.manager.AllRepositories(p.Name) {
			r := r
			g.Go(func() error {
				dir := filepath.Join(s.cfg.DataDir, r.Project, r.Name, "objects")
				store, err := objectstore.Open(dir, nil)
				if err != nil {
					return err
				}
				s.engine.Register(r.ID(), store)
				s.registerQueryAndIndexer(r.ID(), store)
				return nil
			})
		}
	}
	return g.Wait()
}

func computeWorkers(cfg *config.Config) int {
	if cfg.ComputeWorkers > 0 {
		return cfg.ComputeWorkers
	}
	return runtime.NumCPU()
}

// combinedApplier fans a replicated Command out to the Repository
// Manager's, Commit Engine's, Session Store's, and Config's appliers by
// Kind, the way spec.md section 4.F describes a single log feeding
// multiple local subsystems.
func combinedApplier(manager *repomanager.Manager, engine *commit.Engine, sessions *session.Store) replication.Applier {
	repoApplier := repomanager.Applier(manager)
	pushApplier := commit.Applier(engine)
	sessionApplier := session.Applier(sessions)
	configApplier := config.Applier()

	return replication.ApplierFunc(func(cmd replication.Command) (json.RawMessage, error) {
		switch {
		case isProjectOrRepoKind(cmd.Kind):
			return repoApplier.Apply(cmd)
		case cmd.Kind == replication.KindPush || cmd.Kind == replication.KindForcePush:
			return pushApplier.Apply(cmd)
		case cmd.Kind == replication.KindCreateSession || cmd.Kind == replication.KindRemoveSession:
			return sessionApplier.Apply(cmd)
		case cmd.Kind == replication.KindUpdateServerState:
			return configApplier.Apply(cmd)
		default:
			return nil, nil
		}
	})
}

func isProjectOrRepoKind(k replication.Kind) bool {
	switch k {
	case replication.KindCreateProject, replication.KindRemoveProject,
		replication.KindUnremoveProject, replication.KindPurgeProject,
		replication.KindCreateRepo, replication.KindRemoveRepo,
		replication.KindUnremoveRepo, replication.KindPurgeRepo:
		return true
	default:
		return false
	}
}
