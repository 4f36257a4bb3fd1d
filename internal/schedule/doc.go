// Package schedule decides which content items are due and drives them
// through the publisher, recording each confirmed post in the ledger.
//
// A tick is a full pass over the schedule source. Ticks hold no state between
// runs; repeating one without new items or elapsed time publishes nothing.
package schedule
