package replication

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"lwwdoc/internal/document"
	"lwwdoc/internal/quorum"
	"lwwdoc/internal/repair"
	"lwwdoc/internal/ring"
)

// ErrUnknownDocument is returned when replicating a document the local
// node does not hold.
var ErrUnknownDocument = errors.New("unknown document")

// Config tunes a Replicator.
type Config struct {
	// ReplicationFactor is the length of each document's preference list,
	// the local node included.
	ReplicationFactor int
	// WriteAcks is the number of peers that must acknowledge a push.
	// Zero means a majority of the peers.
	WriteAcks int
	// Timeout bounds each peer call.
	Timeout time.Duration
}

// Replicator pushes and pulls documents to and from their peers.
type Replicator struct {
	self    ring.Node
	ring    *ring.Ring
	clients *ClientManager
	host    Host
	cfg      Config
	repairer *repair.ReadRepairer
	logger   log.Logger
}

// NewReplicator creates a replicator for the local node self.
func NewReplicator(self ring.Node, r *ring.Ring, clients *ClientManager, host Host, cfg Config, logger log.Logger) *Replicator {
	rep := &Replicator{
		self:    self,
		ring:    r,
		clients: clients,
		host:    host,
		cfg:     cfg,
		logger:  log.With(logger, "component", "replicator"),
	}
	rep.repairer = repair.NewReadRepairer(rep.push, cfg.Timeout, logger)
	return rep
}

// Peers returns the replicas of id other than the local node.
func (r *Replicator) Peers(id string) []ring.Node {
	list := ReplicasFor(r.ring, id, r.cfg.ReplicationFactor)
	peers := make([]ring.Node, 0, len(list))
	for _, n := range list {
		if n.ID != r.self.ID {
			peers = append(peers, n)
		}
	}
	return peers
}

// Replicate pushes the local state of id to its peers and merges their
// replies. A document without peers is trivially replicated.
func (r *Replicator) Replicate(ctx context.Context, id string) quorum.Result {
	doc, ok := r.host.Snapshot(ctx, id, 0)
	if !ok {
		return quorum.Result{Err: errors.Wrap(ErrUnknownDocument, id)}
	}

	return r.fanout(ctx, id, func(ctx context.Context, client ReplicaClient) error {
		reply, err := client.Push(ctx, SnapshotToProto(doc))
		if err != nil {
			return errors.Wrap(err, "push")
		}
		return r.absorb(ctx, reply)
	})
}

// Fetch pulls the registers of id written after since from every peer and
// merges them.
func (r *Replicator) Fetch(ctx context.Context, id string, since uint64) quorum.Result {
	return r.fanout(ctx, id, func(ctx context.Context, client ReplicaClient) error {
		reply, err := client.Pull(ctx, pullRequestToProto(id, since))
		if err != nil {
			return errors.Wrap(err, "pull")
		}
		return r.absorb(ctx, reply)
	})
}

// Repair reads the state of id from every peer, merges it locally and
// repairs the peers that lag behind in the background. It returns the
// quorum outcome of the reads and the identifiers of the replicas found
// stale, the local node included.
func (r *Replicator) Repair(ctx context.Context, id string) (quorum.Result, []string) {
	var (
		mu        sync.Mutex
		snapshots = make(map[string]*document.Document)
	)

	addrs := make(map[string]string)
	for _, p := range r.Peers(id) {
		addrs[p.ID] = p.Addr
	}

	res := r.fanoutPeers(ctx, id, func(ctx context.Context, peer string, client ReplicaClient) error {
		reply, err := client.Pull(ctx, pullRequestToProto(id, 0))
		if err != nil {
			return errors.Wrap(err, "pull")
		}
		doc, err := SnapshotFromProto(reply)
		if err != nil {
			return err
		}
		mu.Lock()
		snapshots[peer] = doc
		mu.Unlock()
		return nil
	})

	mu.Lock()
	defer mu.Unlock()

	local, _ := r.host.Snapshot(ctx, id, 0)
	snapshots[r.self.ID] = local
	rec := repair.Reconcile(id, snapshots)
	stale := rec.StaleReplicas()

	if _, behind := rec.Stale[r.self.ID]; behind {
		if _, err := r.host.Merge(ctx, rec.Merged); err != nil {
			level.Warn(r.logger).Log("msg", "failed to merge repaired state", "doc", id, "err", err)
		}
		delete(rec.Stale, r.self.ID)
	}
	// Nothing to repair when no replica holds the document.
	if rec.Merged.Len() > 0 {
		r.repairer.Repair(rec, addrs)
	}

	return res, stale
}

// Wait blocks until background repairs have finished.
func (r *Replicator) Wait() {
	r.repairer.Wait()
}

// SyncOnce replicates every local document and returns how many failed.
func (r *Replicator) SyncOnce(ctx context.Context) int {
	failed := 0
	for _, id := range r.host.IDs(ctx) {
		res := r.Replicate(ctx, id)
		if res.OK() {
			continue
		}
		failed++
		level.Warn(r.logger).Log(
			"msg", "failed to replicate document",
			"doc", id,
			"acks", res.Acks,
			"required", res.Required,
			"err", res.Err,
		)
	}
	return failed
}

// Run performs anti-entropy rounds every interval until ctx ends.
func (r *Replicator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		level.Info(r.logger).Log("msg", "anti-entropy disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			failed := r.SyncOnce(ctx)
			level.Debug(r.logger).Log(
				"msg", "anti-entropy round finished",
				"failed", failed,
				"took", time.Since(start),
			)
		}
	}
}

func (r *Replicator) push(ctx context.Context, addr string, doc *document.Document) error {
	client, err := r.clients.Get(addr)
	if err != nil {
		return err
	}
	_, err = client.Push(ctx, SnapshotToProto(doc))
	return errors.Wrap(err, "push")
}

func (r *Replicator) fanout(ctx context.Context, id string, call func(context.Context, ReplicaClient) error) quorum.Result {
	return r.fanoutPeers(ctx, id, func(ctx context.Context, _ string, client ReplicaClient) error {
		return call(ctx, client)
	})
}

func (r *Replicator) fanoutPeers(ctx context.Context, id string, call func(context.Context, string, ReplicaClient) error) quorum.Result {
	peers := r.Peers(id)
	if len(peers) == 0 {
		return quorum.Result{}
	}

	addrs := make(map[string]string, len(peers))
	ids := make([]string, 0, len(peers))
	for _, p := range peers {
		addrs[p.ID] = p.Addr
		ids = append(ids, p.ID)
	}

	required := r.cfg.WriteAcks
	if required > len(peers) {
		required = len(peers)
	}

	return quorum.Fanout(ctx, ids, quorum.Options{Required: required, PerReplicaTimeout: r.cfg.Timeout},
		func(ctx context.Context, peer string) error {
			client, err := r.clients.Get(addrs[peer])
			if err != nil {
				return err
			}
			return call(ctx, peer, client)
		})
}

func (r *Replicator) absorb(ctx context.Context, reply *structpb.Struct) error {
	doc, err := SnapshotFromProto(reply)
	if err != nil {
		return err
	}
	_, err = r.host.Merge(ctx, doc)
	return err
}
