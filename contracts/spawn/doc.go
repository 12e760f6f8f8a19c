// Package spawn is the wire contract shared by the factory coordinator
// and the instances it spawns. Both sides are deployed independently, so
// this module carries only plain types: message unions, the spawn
// instruction, and the identity/token primitives they reference. It must
// stay free of dependencies on the main module.
//
// Messages are closed tagged unions in the envelope style: a struct with
// one pointer field per variant, exactly one of which is set. Decode a
// body, call Validate, then switch on the set variant. Unknown or
// ambiguous envelopes are rejected before any handler runs.
package spawn
