// Package accessory models the logical HomeKit accessories derived from
// irrigation controllers and keeps them persisted across restarts.
//
// An accessory is identified by DeriveID over the controller address, a
// kind suffix and the controller serial, so the same zone or program maps
// to the same record every run. The Registry holds the ordered record set
// in memory and writes every change through to a Repository, normally
// SQLiteRepository.
//
// Usage:
//
//	repo := accessory.NewSQLiteRepository(db.DB)
//	reg := accessory.NewRegistry(repo)
//	reg.SetLogger(log)
//	if err := reg.Restore(ctx); err != nil {
//	    return err
//	}
//
//	id := accessory.DeriveID(addr, accessory.ValveSuffix(model, 3), serial)
//	if rec, ok := reg.Find(id); ok {
//	    // refresh rec
//	}
//
// Labels shown to users pass through a Sanitizer, which keeps letters,
// digits, spaces and apostrophes and requires an alphanumeric first and
// last character.
package accessory
