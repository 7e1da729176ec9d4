// Package pollengine implements the deterministic poll engine inside the
// governance context.
//
// The module owns the full poll lifecycle (create/cancel/close), ballot
// casting and changing with weighted and delegated voting, the bitmap voter
// registry, encrypted-ballot reveal, and result publication. Business rules
// live in the application and domain layers; storage, crypto and fee
// verification sit behind ports and adapters.
package pollengine
