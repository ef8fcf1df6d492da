// Package registry holds the agent's task bookkeeping: a generic
// reader-writer-locked Map (the hash_t contract — put/get/drop/keys/freeze)
// and the concrete three-map Registry (threads, controls, children) the
// control thread and workers share.
//
// Freeze is idempotent and irreversible; it blocks new Put and Drop calls
// without touching what is already present, so a worker mid-collection at shutdown
// is never yanked out from under itself.
package registry
