package store

import (
	"fmt"
	"testing"
	"time"
)

// testCluster manages a multi-node cluster for replication tests
type testCluster struct {
	nodes []*Store
}

func newTestCluster(t *testing.T, numNodes int) *testCluster {
	t.Helper()
	c := &testCluster{nodes: make([]*Store, numNodes)}
	c.nodes[0] = newTestStore(t, "node1", true)
	waitForLeadership(t, c.nodes[0], 5*time.Second)

	for i := 1; i < numNodes; i++ {
		id := fmt.Sprintf("node%d", i+1)
		c.nodes[i] = newTestStore(t, id, false)
		if err := c.nodes[0].AddPeer(id, c.nodes[i].Addr()); err != nil {
			c.shutdown()
			t.Fatalf("Failed to add %s to cluster: %v", id, err)
		}
	}
	return c
}

func (c *testCluster) shutdown() {
	for _, node := range c.nodes {
		if node != nil {
			node.Shutdown()
		}
	}
}

func (c *testCluster) leaderIndex() int {
	for i, node := range c.nodes {
		if node != nil && node.IsLeader() {
			return i
		}
	}
	return -1
}

func (c *testCluster) waitForLeader(t *testing.T, timeout time.Duration) *Store {
	t.Helper()
	deadline := time.Now().Add(timeout)
	tick := time.Tick(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		if i := c.leaderIndex(); i >= 0 {
			return c.nodes[i]
		}
		<-tick
	}
	t.Fatal("Timeout waiting for leader")
	return nil
}

func (c *testCluster) kill(t *testing.T, index int) {
	if err := c.nodes[index].Shutdown(); err != nil {
		t.Logf("Error shutting down node %d: %v", index+1, err)
	}
	c.nodes[index] = nil
}

func TestCluster_Replication(t *testing.T) {
	c := newTestCluster(t, 3)
	defer c.shutdown()

	snap := testSnapshot(t, 1)
	if err := c.nodes[0].StoreTree(snap); err != nil {
		t.Fatalf("Failed to store tree on leader: %v", err)
	}
	for i, node := range c.nodes {
		waitForTree(t, node, snap, 5*time.Second)
		t.Logf("node %d holds the tree", i+1)
	}

	// Followers reject writes.
	if err := c.nodes[1].StoreTree(snap); err == nil {
		t.Fatal("Follower accepted a write")
	}
}

func TestCluster_LeaderFailure(t *testing.T) {
	c := newTestCluster(t, 3)
	defer c.shutdown()

	before := testSnapshot(t, 1)
	if err := c.nodes[0].StoreTree(before); err != nil {
		t.Fatalf("Failed to store tree: %v", err)
	}
	for _, node := range c.nodes {
		waitForTree(t, node, before, 5*time.Second)
	}

	c.kill(t, c.leaderIndex())
	leader := c.waitForLeader(t, 10*time.Second)

	got, ok := leader.Tree()
	if !ok || !sameLevels(got, before) {
		t.Fatal("New leader lost the tree")
	}

	after := testSnapshot(t, 2)
	if err := leader.StoreTree(after); err != nil {
		t.Fatalf("Failed to store tree after failover: %v", err)
	}
	for _, node := range c.nodes {
		if node != nil {
			waitForTree(t, node, after, 5*time.Second)
		}
	}
}

func TestCluster_RemovePeer(t *testing.T) {
	c := newTestCluster(t, 2)
	defer c.shutdown()

	if err := c.nodes[0].RemovePeer("node2"); err != nil {
		t.Fatalf("Failed to remove peer: %v", err)
	}
	c.kill(t, 1)
	if !c.nodes[0].IsLeader() {
		t.Fatal("Remaining node should stay leader")
	}
	if err := c.nodes[0].StoreTree(testSnapshot(t, 3)); err != nil {
		t.Fatalf("Single remaining node should accept writes: %v", err)
	}
}
