package peer_test

import (
	"testing"

	"github.com/utxod/utxod/foundation/blockchain/peer"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_PeerSet(t *testing.T) {
	t.Log("Given the need to maintain a set of known peers.")
	{
		ps := peer.NewPeerSet()

		if !ps.Add(peer.New("localhost:9080")) {
			t.Fatalf("\t%s\tShould report a new peer as added.", failed)
		}
		t.Logf("\t%s\tShould report a new peer as added.", success)

		if ps.Add(peer.New("localhost:9080")) {
			t.Fatalf("\t%s\tShould not add a duplicate peer.", failed)
		}
		t.Logf("\t%s\tShould not add a duplicate peer.", success)

		ps.Add(peer.New("localhost:9180"))

		peers := ps.Copy("localhost:9080")
		if len(peers) != 1 || !peers[0].Match("localhost:9180") {
			t.Fatalf("\t%s\tShould exclude the specified host from the copy.", failed)
		}
		t.Logf("\t%s\tShould exclude the specified host from the copy.", success)

		ps.Remove(peer.New("localhost:9180"))
		if len(ps.Copy("")) != 1 {
			t.Fatalf("\t%s\tShould remove a peer from the set.", failed)
		}
		t.Logf("\t%s\tShould remove a peer from the set.", success)
	}
}
