package volume

import (
	"context"
	"math"
	"runtime"
	"sync/atomic"

	"mcot/engine"
	"mcot/tree"
	"mcot/utils"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

type Option func(e *Evaluator)

// Evaluator fits the last payload channel of every leaf to a density field by sampling random
// points in the leaf's cell. The instant reward of a leaf is its share of the total density mass,
// discounted by its fitting error.
type Evaluator struct {
	field      Field
	samples    int
	validation int
	lr         float32
	seed       uint64
	workers    int
	passes     atomic.Uint64
}

func WithSamples(samples int) Option {
	return func(e *Evaluator) {
		if samples > 0 {
			e.samples = samples
		}
	}
}

func WithValidationSamples(samples int) Option {
	return func(e *Evaluator) {
		if samples > 0 {
			e.validation = samples
		}
	}
}

func WithLearningRate(lr float32) Option {
	return func(e *Evaluator) {
		if lr > 0 {
			e.lr = lr
		}
	}
}

func WithSeed(seed uint64) Option {
	return func(e *Evaluator) {
		e.seed = seed
	}
}

func WithWorkers(workers int) Option {
	return func(e *Evaluator) {
		if workers > 0 {
			e.workers = workers
		}
	}
}

func NewEvaluator(field Field, options ...Option) *Evaluator {
	if field == nil {
		panic("field cannot be nil")
	}
	e := &Evaluator{ // Default values
		field:      field,
		samples:    16,
		validation: 512,
		lr:         0.5,
		seed:       1,
		workers:    runtime.GOMAXPROCS(0),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

func (e *Evaluator) Evaluate(ctx context.Context, t *tree.Tree) (engine.Evaluation, error) {
	pass := e.passes.Add(1)
	leaves := t.Leaves()
	dim := t.DataDim()
	payload := t.PayloadBuffer()
	grad := t.Grad()
	codec := t.Codec()

	weights := make([]float64, len(leaves))
	losses := make([]float64, len(leaves))

	g, ctx := errgroup.WithContext(ctx)
	chunk := (len(leaves) + e.workers - 1) / e.workers
	for w := 0; w*chunk < len(leaves); w++ {
		lo, hi := w*chunk, min((w+1)*chunk, len(leaves))
		g.Go(func() error {
			rng := rand.New(rand.NewSource(e.seed ^ pass<<32 ^ uint64(w)))
			for i := lo; i < hi; i++ {
				if i%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				l := leaves[i]
				center, half := t.SlotBounds(l)
				off := int(codec.Pack(l.Node, l.X, l.Y, l.Z))*dim + dim - 1
				pred := float64(payload[off])

				mean, sq := 0.0, 0.0
				for s := 0; s < e.samples; s++ {
					gt := e.field(samplePoint(rng, center, half))
					mean += gt
					sq += (pred - gt) * (pred - gt)
				}
				mean /= float64(e.samples)
				losses[i] = sq / float64(e.samples)
				weights[i] = mean * 8 * half[0] * half[1] * half[2] * math.Exp(-losses[i])

				// One gradient step on the squared error against the cell mean.
				grad[off] = float32(2 * (pred - mean))
				payload[off] -= e.lr * grad[off]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return engine.Evaluation{}, err
	}
	t.ZeroGrad()

	total := utils.Sum(weights)
	rewards := make([]float64, t.Size()*t.SlotsPerNode())
	for i, l := range leaves {
		if total > 0 {
			rewards[codec.Pack(l.Node, l.X, l.Y, l.Z)] = weights[i] / total
		}
	}

	train := utils.Mean(losses)
	validation := e.validate(t, pass)
	log.Debug().Msgf("evaluation pass %d over %d leaves: train %.6f validation %.6f", pass, len(leaves), train, validation)

	return engine.Evaluation{
		Rewards:        rewards,
		TrainLoss:      train,
		ValidationLoss: validation,
	}, nil
}

// validate measures the squared error at random points of the whole volume.
func (e *Evaluator) validate(t *tree.Tree, pass uint64) float64 {
	rng := rand.New(rand.NewSource(^e.seed ^ pass))
	center, radius := t.Bounds()
	dim := t.DataDim()
	loss := 0.0
	for i := 0; i < e.validation; i++ {
		p := samplePoint(rng, center, radius)
		l := t.Query(p)
		pred := float64(t.Payload(l.Node, l.X, l.Y, l.Z)[dim-1])
		gt := e.field(p)
		loss += (pred - gt) * (pred - gt)
	}
	return loss / float64(e.validation)
}

func samplePoint(rng *rand.Rand, center, half [3]float64) [3]float64 {
	var p [3]float64
	for i := range p {
		p[i] = center[i] + (2*rng.Float64()-1)*half[i]
	}
	return p
}
