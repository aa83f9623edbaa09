package coordination

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

// leaseTTLSeconds is the session TTL backing CreateEphemeral keys and
// leader-election campaigns; a replica that stops renewing its lease
// (crash, network partition) is evicted within this window.
const leaseTTLSeconds = 10

// EtcdStore backs Store with a real etcd cluster: leases model ephemeral
// nodes, Txn models compare-and-swap, Watch maps directly, and
// concurrency.Election models leader election — the pairing the pack's
// ConfigButler-gitops-reverser and cuemby-warren manifests both pull in
// etcd for.
type EtcdStore struct {
	client *clientv3.Client
}

// Dial connects to the etcd cluster at endpoints.
func Dial(endpoints []string) (*EtcdStore, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.NoQuorum, err, "connecting to coordination store")
	}
	return &EtcdStore{client: c}, nil
}

func (s *EtcdStore) CreateEphemeral(ctx context.Context, key string, value []byte) error {
	lease, err := s.client.Grant(ctx, leaseTTLSeconds)
	if err != nil {
		return dogmaerrors.Wrap(dogmaerrors.NoQuorum, err, "granting lease for %s", key)
	}
	txn := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(value), clientv3.WithLease(lease.ID)))
	resp, err := txn.Commit()
	if err != nil {
		return dogmaerrors.Wrap(dogmaerrors.NoQuorum, err, "creating ephemeral key %s", key)
	}
	if !resp.Succeeded {
		return dogmaerrors.New(dogmaerrors.AlreadyExists, "key %s already exists", key)
	}
	ch, err := s.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return dogmaerrors.Wrap(dogmaerrors.NoQuorum, err, "starting lease keepalive for %s", key)
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

func (s *EtcdStore) CreateSequential(ctx context.Context, prefix string, value []byte) (string, error) {
	resp, err := s.client.Get(ctx, prefix, clientv3.WithCountOnly(), clientv3.WithPrefix())
	if err != nil {
		return "", dogmaerrors.Wrap(dogmaerrors.NoQuorum, err, "sequencing key under %s", prefix)
	}
	key := fmt.Sprintf("%s%020d", prefix, resp.Header.Revision)
	if _, err := s.client.Put(ctx, key, string(value)); err != nil {
		return "", dogmaerrors.Wrap(dogmaerrors.NoQuorum, err, "appending sequential key %s", key)
	}
	return key, nil
}

func (s *EtcdStore) Get(ctx context.Context, key string) ([]byte, int64, bool, error) {
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, 0, false, dogmaerrors.Wrap(dogmaerrors.NoQuorum, err, "reading %s", key)
	}
	if len(resp.Kvs) == 0 {
		return nil, 0, false, nil
	}
	kv := resp.Kvs[0]
	return kv.Value, kv.Version, true, nil
}

func (s *EtcdStore) CompareAndSwap(ctx context.Context, key string, expectVersion int64, newValue []byte) error {
	txn := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.Version(key), "=", expectVersion)).
		Then(clientv3.OpPut(key, string(newValue)))
	resp, err := txn.Commit()
	if err != nil {
		return dogmaerrors.Wrap(dogmaerrors.NoQuorum, err, "compare-and-swap on %s", key)
	}
	if !resp.Succeeded {
		return dogmaerrors.New(dogmaerrors.ChangeConflict, "key %s changed concurrently", key)
	}
	return nil
}

// ListAndWatch lists the current revision's keys under prefix, then
// watches from the revision immediately after the one the listing was
// taken at (clientv3.WithRev), so the backlog and the live stream cover
// every revision exactly once with no gap.
func (s *EtcdStore) ListAndWatch(ctx context.Context, prefix string) ([]Event, <-chan Event, error) {
	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, nil, dogmaerrors.Wrap(dogmaerrors.NoQuorum, err, "listing %s", prefix)
	}
	backlog := make([]Event, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		backlog = append(backlog, Event{Key: string(kv.Key), Value: kv.Value})
	}

	out := make(chan Event, 64)
	wch := s.client.Watch(ctx, prefix, clientv3.WithPrefix(), clientv3.WithRev(resp.Header.Revision+1))
	go func() {
		defer close(out)
		for resp := range wch {
			for _, ev := range resp.Events {
				out <- Event{
					Key:     string(ev.Kv.Key),
					Value:   ev.Kv.Value,
					Deleted: ev.Type == clientv3.EventTypeDelete,
				}
			}
		}
	}()
	return backlog, out, nil
}

func (s *EtcdStore) Campaign(ctx context.Context, electionName string, value []byte) (func(context.Context) error, error) {
	session, err := concurrency.NewSession(s.client, concurrency.WithTTL(leaseTTLSeconds))
	if err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.NoQuorum, err, "opening election session")
	}
	election := concurrency.NewElection(session, electionName)
	if err := election.Campaign(ctx, string(value)); err != nil {
		session.Close()
		return nil, dogmaerrors.Wrap(dogmaerrors.NoQuorum, err, "campaigning for %s", electionName)
	}
	resign := func(resignCtx context.Context) error {
		defer session.Close()
		return election.Resign(resignCtx)
	}
	return resign, nil
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}
