// Package kernel implements the Mycelia actor runtime kernel.
//
// This package contains:
//   - Tagged 64-bit value representation
//   - Fixed-size block store with a free-list allocator
//   - Synchronous conservative mark-and-sweep collector
//   - Bounded event and continuation queues
//   - The actor transaction protocol (CREATE/SEND/BECOME/SELF/ABORT)
//   - A single-threaded, instruction-granular dispatcher
package kernel
