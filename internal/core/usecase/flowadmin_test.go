package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

type recordingBus struct {
	err      error
	versions []int64
}

func (b *recordingBus) PublishFlowUpdated(_ context.Context, version int64) error {
	if b.err != nil {
		return b.err
	}
	b.versions = append(b.versions, version)
	return nil
}

func (b *recordingBus) SubscribeFlowUpdated(context.Context, func(context.Context, int64) error) error {
	return nil
}

func TestPublishInstallsSnapshotAndBroadcasts(t *testing.T) {
	repo := &staticFlowRepo{graph: reportGraph()}
	cache := NewFlowCache(repo, nil)
	bus := &recordingBus{}
	admin := NewFlowAdminService(repo, cache, bus, nil)

	version, err := admin.Publish(context.Background())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
	snap := admin.CurrentSnapshot()
	if snap == nil || snap.Version() != 1 {
		t.Fatalf("expected installed snapshot version 1, got %+v", snap)
	}
	if len(bus.versions) != 1 || bus.versions[0] != 1 {
		t.Fatalf("expected broadcast of version 1, got %v", bus.versions)
	}

	if version, err = admin.Publish(context.Background()); err != nil || version != 2 {
		t.Fatalf("expected second publish version 2, got %d, %v", version, err)
	}
}

func TestPublishSucceedsLocallyWhenBusIsDown(t *testing.T) {
	repo := &staticFlowRepo{graph: reportGraph()}
	cache := NewFlowCache(repo, nil)
	bus := &recordingBus{err: errors.New("no servers")}
	admin := NewFlowAdminService(repo, cache, bus, nil)

	version, err := admin.Publish(context.Background())
	if err != nil {
		t.Fatalf("publish should tolerate a dead bus, got %v", err)
	}
	if version != 1 || admin.CurrentSnapshot() == nil {
		t.Fatalf("expected local snapshot installed, version %d", version)
	}
}

func TestPublishRejectsBrokenGraphKeepingOldSnapshot(t *testing.T) {
	graph := reportGraph()
	repo := &staticFlowRepo{graph: graph}
	cache := NewFlowCache(repo, nil)
	admin := NewFlowAdminService(repo, cache, &recordingBus{}, nil)

	if _, err := admin.Publish(context.Background()); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	broken := graph
	broken.Edges = append([]domain.FlowEdge{}, graph.Edges...)
	broken.Edges = append(broken.Edges, domain.FlowEdge{
		ID: "dangling", SourceID: "i1", TargetID: "nowhere", EdgeType: domain.EdgeNext,
	})
	repo.graph = broken

	_, err := admin.Publish(context.Background())
	if !domain.IsKind(err, domain.ErrGraphStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
	if snap := admin.CurrentSnapshot(); snap == nil || snap.Version() != 1 {
		t.Fatalf("expected old snapshot still serving, got %+v", snap)
	}
}
