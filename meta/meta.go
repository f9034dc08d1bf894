// meta/meta.go
package meta

// BRANCHING defines the number of children per axis of every internal node.
const BRANCHING = 2

// DATA_DIM defines the payload width of every slot.
const DATA_DIM = 4

// DEPTH_LIMIT defines the maximum depth of a leaf slot.
const DEPTH_LIMIT = 10

// INIT_REFINE defines the number of uniform refinement passes at construction.
const INIT_REFINE = 0

// GROWTH_FACTOR defines how much capacity grows when the arena is full.
const GROWTH_FACTOR = 1.5

// MAX_NODES defines the hard ceiling on allocated nodes.
const MAX_NODES = 10_000_000

// INIT_VALUE defines the payload of newly refined slots.
const INIT_VALUE = 0.01

// SAMPLING_RATE defines the fraction of leaves expanded per round.
const SAMPLING_RATE = 0.01

// SAMPLING_RATE_FINAL defines the sampling rate once decay completes.
const SAMPLING_RATE_FINAL = 0.003

// DECAY_STEPS defines the number of rounds over which schedules decay.
const DECAY_STEPS = 1000

// MAX_ROUNDS defines the round budget of the engine.
const MAX_ROUNDS = 300

// THRESH_EPOCHS defines how often, in rounds, the engine prunes instead of refining.
const THRESH_EPOCHS = 2

// STABILITY_TOLERANCE defines how many stable evaluation passes end an evaluation.
const STABILITY_TOLERANCE = 3

// GO_ROUTINES defines the number of concurrent engines in a sweep.
const GO_ROUTINES = 8
