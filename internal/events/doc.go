// Package events carries the input changes that make decisions stale.
//
// Three event kinds exist: an assumption changed status, a constraint link
// changed (linked, unlinked or its violated flag flipped), and a decision
// was re-evaluated with a changed outcome. Handling an event never
// evaluates anything; it only flags the affected decisions so the
// scheduler picks them up.
//
// Events flow through a Bus: producers Publish from any goroutine and a
// single Run loop dispatches them in FIFO order.
package events
