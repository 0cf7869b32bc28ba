// Package testing provides a conformance suite for implementations of the
// table.ILockTable and table.IHeartbeatTable interfaces.
//
//   - RunTableTests: runs the suite against a factory that returns fresh tables
//
// Every table implementation in this module runs the suite from its own tests:
//
//	func Test(t *testing.T) {
//		tabletesting.RunTableTests(t, "MemoryTables", func(t *testing.T) table.Tables {
//			return mtable.NewTables()
//		})
//	}
package testing
