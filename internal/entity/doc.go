// Package entity defines the order, transaction, checkin, booking and
// loyalty types shared between the platform gateway, the realtime channel
// and the reconciliation core.
//
// Two rules hold everywhere these types travel:
//
//   - The platform owns every Version token. A version is read from the
//     platform, recorded against the POS-local id, and echoed unchanged on
//     the next write to the same entity. A stale or missing version makes
//     the platform answer with a conflict.
//
//   - The POS owns the mapping from platform ids to POS-local ids. A
//     platform id may be absent on an order the POS originated that has not
//     round-tripped yet.
//
// All monetary amounts are integer minor units (cents). No float ever
// carries money through this module.
package entity
