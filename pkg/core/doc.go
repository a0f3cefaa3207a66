// Package core defines the contracts between the render loop and the
// instance tree it drives.
//
// The render loop does not build widgets or diff trees. It consumes three
// collaborators:
//
//   - Tree turns widget specs into widgets and creates root parents.
//   - Parent resolves the child Instance bound to a widget on every render.
//   - Instance exposes the four render phases: Explore, Prepare, Render and
//     Cleanup, plus Destroy for teardown.
//
// # Rendering Context
//
// Each explore attempt gets a fresh Context. The context of the attempt that
// the pipeline keeps is passed to Prepare, Render and finally Cleanup, after
// which it is released. Instances tie per-pass resources to it:
//
//	func (c *counter) Prepare(ctx *core.Context) {
//	    sub := c.source.Open()
//	    ctx.OnCleanup(sub.Close)
//	}
//
// # Render Results
//
// Render may return any value. Results that implement ContentHolder are
// unwrapped with ContentOf before they reach the host.
package core
