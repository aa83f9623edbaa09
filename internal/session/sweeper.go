package session

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// LeadershipChecker reports whether this process currently holds
// leadership of the Replication Log; the sweeper only deletes entries
// while true, so every replica's filesystem state stays identical and
// only the leader originates REMOVE_SESSION commands (spec.md 4.G).
type LeadershipChecker func() bool

// Sweeper walks Store's two-level shard directories on a cron schedule
// and deletes every expired session, logging non-fatal per-entry
// failures individually rather than aborting the sweep.
type Sweeper struct {
	store     *Store
	isLeader  LeadershipChecker
	log       logrus.FieldLogger
	cron      *cron.Cron
	onExpired func(id string)
}

// NewSweeper builds a Sweeper that fires on schedule (6-field cron
// syntax with a leading seconds field, matching config.Config's
// SessionSweepCron; "@every" descriptors also work). onExpired, if
// non-nil, is invoked for each session the sweeper deletes — wired to
// submit a REMOVE_SESSION replication command so followers mirror the
// deletion.
func NewSweeper(store *Store, schedule string, isLeader LeadershipChecker, onExpired func(id string), log logrus.FieldLogger) (*Sweeper, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Sweeper{
		store:     store,
		isLeader:  isLeader,
		log:       log,
		cron:      cron.New(cron.WithSeconds()),
		onExpired: onExpired,
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron schedule; Stop blocks until the in-flight sweep
// (if any) finishes.
func (s *Sweeper) Start() { s.cron.Start() }
func (s *Sweeper) Stop()  { <-s.cron.Stop().Done() }

func (s *Sweeper) sweep() {
	if s.isLeader != nil && !s.isLeader() {
		return
	}
	now := time.Now()
	shards, err := os.ReadDir(s.store.root)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).Warn("session sweeper: listing shard directories")
		}
		return
	}
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		s.sweepShard(filepath.Join(s.store.root, shard.Name()), now)
	}
}

func (s *Sweeper) sweepShard(dir string, now time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.WithError(err).WithField("dir", dir).Warn("session sweeper: listing shard")
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".tmp-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		sess, err := s.store.readRaw(id)
		if err != nil {
			continue // already gone, or corrupt — leave corrupt files for operator inspection
		}
		if !sess.expired(now) {
			continue
		}
		if err := s.store.Delete(id); err != nil {
			s.log.WithError(err).WithField("session", id).Warn("session sweeper: deleting expired session")
			continue
		}
		if s.onExpired != nil {
			s.onExpired(id)
		}
	}
}
