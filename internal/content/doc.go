// Package content models scheduled content items and the sources that list them.
//
// An item's identity is the (date, time, text) triple as written in the source;
// there is no surrogate key. Sources return items in their own order, which the
// scheduler preserves when dispatching.
package content
