// Package pipeline builds and supervises the external translation pipeline
// subprocess. The scheduler treats the pipeline as opaque: it is handed a job
// identifier and the work and knowledge-base roots, and exit code zero means
// the job succeeded.
//
// Every pipeline runs in its own process group so cancellation and stuck-run
// cleanup can signal the whole tree, including any helpers the pipeline forks.
package pipeline
