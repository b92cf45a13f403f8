// Package dispatch implements the assignment engine for field-service
// interventions: candidate filtering, composite scoring, parallel offer
// fan-out with first-accept-wins claiming, permanent exclusions and
// timeout-driven waterfall reassignment.
//
// The engine is stateless between calls; all state lives behind the
// injected store. The only concurrency it must survive is several
// technicians accepting the same intervention at once, which is resolved
// by the store's atomic claim primitive.
package dispatch
