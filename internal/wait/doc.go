// Package wait implements the bounded cooperative wait used by every blocking
// step of the provisioning engine.
//
// A wait repeatedly checks its predicate and deadline, sleeps for a short
// interval, pumps the collaborator loop and checks for cancellation. It
// returns one of Completed, TimedOut or Cancelled and never blocks longer than
// its timeout plus one interval.
package wait
