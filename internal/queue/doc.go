// Package queue persists translation job runs in SQLite and exposes the
// atomic lifecycle operations the worker and control surface build on.
//
// The Store manages database connections, schema initialization, claim and
// heartbeat transitions, cooperative cancellation stamps, stuck-run recovery,
// and stats queries. A partial unique index guarantees at most one queued or
// running row per job, so repeated enqueues are idempotent by construction.
//
// The jobs table in the same database belongs to the translation pipeline.
// The queue's contract with it is narrow: flip status to queued/running as
// runs progress and force a terminal failed/canceled status when the pipeline
// dies before writing one itself. Job status is never moved out of a terminal
// state.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
