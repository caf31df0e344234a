package ace

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/llm"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Generate *GenerateOptions
	Reflect  *ReflectOptions
	Curate   *CurateOptions

	// Async moves reflection and curation to a background worker so
	// Process returns as soon as the trajectory exists.
	Async bool

	// QueueSize bounds the async trajectory queue (default 100).
	QueueSize int
}

// ProcessResult aggregates one pass through the loop. Reflection, Curation
// and Apply are nil when learning ran asynchronously.
type ProcessResult struct {
	Trajectory *Trajectory
	Reflection *ReflectionResult
	Curation   *CurationResult
	Apply      *playbook.ApplyResult
}

// Manager wires generator, reflector and curator into the closed learning
// loop around a single playbook store. At most one learning pipeline
// mutates the store at a time: the background worker is a single goroutine,
// and synchronous processing runs on the caller's goroutine.
type Manager struct {
	store     *playbook.Store
	generator *Generator
	reflector *Reflector
	curator   *Curator
	opts      ManagerOptions
	logger    *logging.Logger

	queue     chan *Trajectory
	done      chan struct{}
	closeOnce sync.Once
	wg        conc.WaitGroup

	trajectoriesProcessed atomic.Int64
	insightsExtracted     atomic.Int64
	bulletsAdded          atomic.Int64
	bulletsUpdated        atomic.Int64
	bulletsDeleted        atomic.Int64
}

// NewManager assembles the loop around a store and gateway.
func NewManager(store *playbook.Store, gateway llm.Gateway, opts ManagerOptions) *Manager {
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	m := &Manager{
		store:     store,
		generator: NewGenerator(store, gateway),
		reflector: NewReflector(gateway),
		curator:   NewCurator(store, gateway),
		opts:      opts,
		logger:    logging.GetLogger(),
		queue:     make(chan *Trajectory, queueSize),
		done:      make(chan struct{}),
	}

	if opts.Async {
		m.wg.Go(m.processLoop)
	}

	return m
}

// Store returns the playbook store the loop mutates.
func (m *Manager) Store() *playbook.Store {
	return m.store
}

// Process runs one pass: generate a trajectory, then learn from it. With
// Async enabled the learning half happens in the background and the returned
// result carries only the trajectory.
func (m *Manager) Process(ctx context.Context, query string) (*ProcessResult, error) {
	trajectory, err := m.generator.Generate(ctx, query, m.opts.Generate)
	if err != nil {
		return nil, err
	}

	if m.opts.Async {
		// Block when the queue is full so learning stays on the single
		// worker goroutine. The trajectory is dropped only if the caller
		// gives up first.
		select {
		case m.queue <- trajectory:
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.Canceled, "trajectory enqueue canceled")
		}
		return &ProcessResult{Trajectory: trajectory}, nil
	}

	result := m.learn(ctx, trajectory)
	result.Trajectory = trajectory
	return result, nil
}

// Learn runs reflection, curation and delta application for an existing
// trajectory, synchronously.
func (m *Manager) Learn(ctx context.Context, trajectory *Trajectory) *ProcessResult {
	return m.learn(ctx, trajectory)
}

// Close stops the background worker and drains pending trajectories. It is
// safe to call more than once.
func (m *Manager) Close() error {
	if m.opts.Async {
		m.closeOnce.Do(func() {
			close(m.done)
		})
		m.wg.Wait()
	}
	return nil
}

// Metrics returns loop counters accumulated since construction.
func (m *Manager) Metrics() map[string]int64 {
	return map[string]int64{
		"trajectories_processed": m.trajectoriesProcessed.Load(),
		"insights_extracted":     m.insightsExtracted.Load(),
		"bullets_added":          m.bulletsAdded.Load(),
		"bullets_updated":        m.bulletsUpdated.Load(),
		"bullets_deleted":        m.bulletsDeleted.Load(),
	}
}

func (m *Manager) processLoop() {
	for {
		select {
		case <-m.done:
			for {
				select {
				case t := <-m.queue:
					m.learn(context.Background(), t)
				default:
					return
				}
			}
		case t := <-m.queue:
			m.learn(context.Background(), t)
		}
	}
}

func (m *Manager) learn(ctx context.Context, trajectory *Trajectory) *ProcessResult {
	m.trajectoriesProcessed.Add(1)
	result := &ProcessResult{Trajectory: trajectory}

	reflection, err := m.reflector.Reflect(ctx, trajectory, m.opts.Reflect)
	if err != nil {
		m.logger.Error(ctx, "reflection failed: %v", err)
		return result
	}
	result.Reflection = reflection
	m.insightsExtracted.Add(int64(len(reflection.Insights)))

	curation, err := m.curator.Curate(ctx, reflection.Insights, m.opts.Curate)
	if err != nil {
		m.logger.Error(ctx, "curation failed: %v", err)
		return result
	}
	result.Curation = curation

	apply := m.store.ApplyDeltas(curation.Operations)
	result.Apply = &apply
	m.bulletsAdded.Add(int64(apply.Added))
	m.bulletsUpdated.Add(int64(apply.Updated))
	m.bulletsDeleted.Add(int64(apply.Deleted))

	return result
}
