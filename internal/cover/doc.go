// Package cover holds the cover domain types and the device registry that
// maps hub device identifiers to logical cover names.
//
// The registry is built once from configuration and never mutated, so it
// is safe for concurrent reads without locking. Device identifiers are
// normalized to a canonical string at the registry boundary: the hub
// reports numeric ids in some payloads and strings in others, and both
// forms of the same id resolve to the same cover.
//
// # Usage
//
//	reg, err := cover.NewRegistry([]cover.Mapping{
//	    {ID: "1584296123", Name: "kitchen"},
//	})
//	if err != nil {
//	    return err // duplicate id or name
//	}
//	id, err := reg.NameToID("kitchen")
package cover
