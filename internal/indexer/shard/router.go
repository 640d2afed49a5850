// Package shard decides which searcher machine indexes a document. Every
// machine reads the full document stream and keeps the documents it owns,
// so a query fanned out to all machines sees each document exactly once.
package shard

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
)

// Router maps documents to machines by a hash of their URL.
type Router struct {
	machineID int
	machines  int
}

// NewRouter returns the router of machineID in a cluster of machines.
func NewRouter(machineID, machines int) (*Router, error) {
	if machines < 1 {
		return nil, fmt.Errorf("cluster needs at least one machine, got %d", machines)
	}
	if machineID < 0 || machineID >= machines {
		return nil, fmt.Errorf("machine id %d outside 0-%d", machineID, machines-1)
	}
	return &Router{machineID: machineID, machines: machines}, nil
}

// DocKey is the key a document is stored and ranked under.
func DocKey(url string) models.Key {
	return models.Key(xxhash.Sum64String(normalize(url)))
}

// Owner returns the machine indexing url.
func (r *Router) Owner(url string) int {
	return int(xxhash.Sum64String(normalize(url)) % uint64(r.machines))
}

// Owns reports whether this machine indexes url.
func (r *Router) Owns(url string) bool {
	return r.Owner(url) == r.machineID
}

func (r *Router) MachineID() int { return r.machineID }

func (r *Router) Machines() int { return r.machines }

func normalize(url string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(url)), "/")
}
