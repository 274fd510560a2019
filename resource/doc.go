// Package resource provides handle tables for values that cross the
// module/host boundary as plain integers.
//
// The host understands nothing but u32 values, so anything the module wants
// back later (a completion record, a worker bundle) is stored in a table and
// its Handle is sent instead. Handle 0 is always invalid.
//
// # Handle Table
//
//	table := resource.NewTable()
//	handle := table.Insert(resource.TypeCompletion, rec)
//	value, ok := table.Take(handle, resource.TypeCompletion)
//
// Handles carry a slot generation. Once a handle has been taken or removed,
// it no longer resolves, even after its slot is reused.
//
// # Single-Use Ownership
//
// Owned wraps a table for one value type and gives the leak/reclaim pair:
//
//	records := resource.NewOwned[*Record](table, resource.TypeCompletion)
//	h, err := records.Leak(rec)    // ownership moves into the table
//	rec, ok := records.Reclaim(h)  // ownership moves back, once
//
// # Observers
//
//	table.Subscribe(counter) // counter implements OnResourceEvent
//
// Close calls Drop on every remaining value that implements Dropper.
package resource
