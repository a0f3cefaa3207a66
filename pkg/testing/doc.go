// Package testing provides a test harness for root bindings.
//
// # Quick Start
//
// Create a tester, mount an instance, mutate the store and tick the loop:
//
//	func TestCounter(t *testing.T) {
//	    tester := rltest.NewTesterWithT(t)
//	    inst := rltest.NewInstance("counter")
//	    inst.StoreScope = tester.Store()
//	    binding := tester.Mount(mount.Props{Instance: inst, Subscribe: true})
//
//	    tester.Store().Set("count", 1)
//	    tester.Store().Set("count", 2)
//	    tester.Tick()
//
//	    if binding.RenderCount() != 2 { // initial mount plus one coalesced update
//	        t.Errorf("renders = %d", binding.RenderCount())
//	    }
//	}
//
// # Deterministic Time
//
// Every tester owns a FakeClock shared by its loop and the timing probe:
//
//	tester.Clock().Advance(100 * time.Millisecond)
//	tester.Tick()
//
// # Import Alias
//
// Since this package has the same name as the standard library testing
// package, import it with an alias:
//
//	import rltest "github.com/go-drift/renderloop/pkg/testing"
package testing
