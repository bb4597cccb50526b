// Package reconnect decides when a node may retry a failed broker
// connection.
//
// The policy is a set of pure functions over an explicit State value. The
// caller loads State from persistent storage before each wake cycle, asks
// ShouldAttempt whether connecting is allowed, folds the outcome back in
// with RecordAttempt/RecordSuccess, and persists the result before sleeping.
// Nothing here touches the clock, storage or the network: a node that loses
// power mid-attempt picks up exactly where the persisted state left off.
//
// The schedule gives a configurable number of free back-to-back attempts,
// then backs off exponentially between further tries up to a ceiling. With
// the defaults (3 free attempts, factor 2, 1h floor, 6h ceiling) a node
// facing a dead broker still probes at least four times a day, forever,
// without draining its battery on a tight retry loop.
package reconnect
