package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oggyb/event-network/internal/cache"
	"github.com/oggyb/event-network/internal/db"
	svcErr "github.com/oggyb/event-network/internal/errors"
	"github.com/oggyb/event-network/internal/events"
	"github.com/oggyb/event-network/internal/metrics"
)

const recomputeOp = "matching.recompute"

// Directory is the read-only profile source.
type Directory interface {
	ListRegistrants(ctx context.Context, eventID uint64) ([]db.Profile, error)
}

// MatchStore persists a full match generation for an event.
type MatchStore interface {
	ReplaceForEvent(ctx context.Context, eventID uint64, rows []db.Match) (uint64, error)
}

type Options struct {
	// Threshold is the minimum score kept; DefaultThreshold when nil.
	// Zero keeps every scored pair.
	Threshold *int
	// Workers bounds parallel scoring; 1 when <= 0.
	Workers int
	// LockTTL bounds how long a crashed run can block the event; 5m when 0.
	LockTTL time.Duration
}

// Result summarizes one recompute run.
type Result struct {
	EventID     uint64
	Epoch       uint64
	Registrants int
	PairsScored int
	Persisted   int
	Took        time.Duration
}

// Job recomputes the match set of an event.
//
// The run is split in a pure compute phase (cancel at will, nothing
// written) and a single-transaction write phase handled by MatchStore.
type Job struct {
	dir       Directory
	store     MatchStore
	cache     *cache.RedisCache
	publisher events.Publisher
	log       *slog.Logger
	opts      Options

	mu      sync.Mutex
	running map[uint64]struct{}
}

// NewJob wires a recompute job. cache and publisher may be nil.
func NewJob(dir Directory, store MatchStore, rc *cache.RedisCache, publisher events.Publisher, log *slog.Logger, opts Options) *Job {
	if opts.Threshold == nil {
		t := DefaultThreshold
		opts.Threshold = &t
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	return &Job{
		dir:       dir,
		store:     store,
		cache:     rc,
		publisher: publisher,
		log:       log.With("component", "match_recompute"),
		opts:      opts,
		running:   make(map[uint64]struct{}),
	}
}

// Run recomputes and replaces the match set of eventID.
//
// Errors:
//   - Invalid for a zero event id or malformed registrant profiles.
//   - Conflict when a run for the same event is already in progress.
//   - Transient for store failures and cancellation; nothing was replaced.
func (j *Job) Run(ctx context.Context, eventID uint64) (Result, error) {
	start := time.Now()
	res, err := j.run(ctx, eventID)
	res.EventID = eventID
	res.Took = time.Since(start)

	metrics.ObserveRecompute(metrics.Status(err), res.Took, res.Persisted)
	if err != nil {
		j.log.Warn("recompute failed", "event_id", eventID, "err", err)
		return res, err
	}

	j.log.Info("recompute finished",
		"event_id", eventID,
		"epoch", res.Epoch,
		"registrants", res.Registrants,
		"pairs_scored", res.PairsScored,
		"persisted", res.Persisted,
		"took", res.Took,
	)
	return res, nil
}

func (j *Job) run(ctx context.Context, eventID uint64) (Result, error) {
	var res Result
	if eventID == 0 {
		return res, svcErr.Invalid(recomputeOp, "event id must be set")
	}

	release, err := j.lock(ctx, eventID)
	if err != nil {
		return res, err
	}
	defer release()

	profiles, err := j.dir.ListRegistrants(ctx, eventID)
	if err != nil {
		return res, transient(err)
	}
	res.Registrants = len(profiles)

	rows, scored, err := j.Compute(ctx, profiles)
	res.PairsScored = scored
	if err != nil {
		return res, err
	}

	epoch, err := j.store.ReplaceForEvent(ctx, eventID, rows)
	if err != nil {
		return res, transient(err)
	}
	res.Epoch = epoch
	res.Persisted = len(rows)

	j.afterSwap(ctx, eventID, res)
	return res, nil
}

// lock takes the process-local guard and, with Redis configured, the
// cluster-wide lock for eventID.
func (j *Job) lock(ctx context.Context, eventID uint64) (func(), error) {
	j.mu.Lock()
	if _, busy := j.running[eventID]; busy {
		j.mu.Unlock()
		return nil, svcErr.Conflict(recomputeOp, fmt.Sprintf("recompute of event %d already running", eventID))
	}
	j.running[eventID] = struct{}{}
	j.mu.Unlock()

	unlockLocal := func() {
		j.mu.Lock()
		delete(j.running, eventID)
		j.mu.Unlock()
	}

	if j.cache == nil {
		return unlockLocal, nil
	}

	releaseRemote, err := j.cache.AcquireLock(ctx, j.cache.KeyForRecomputeLock(eventID), j.opts.LockTTL)
	if err != nil {
		unlockLocal()
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, svcErr.Conflict(recomputeOp, fmt.Sprintf("recompute of event %d already running", eventID))
		}
		return nil, svcErr.Transient(recomputeOp, err)
	}

	return func() {
		if err := releaseRemote(context.WithoutCancel(ctx)); err != nil {
			j.log.Warn("failed to release recompute lock", "event_id", eventID, "err", err)
		}
		unlockLocal()
	}, nil
}

func (j *Job) afterSwap(ctx context.Context, eventID uint64, res Result) {
	if j.cache != nil {
		if err := j.cache.BumpMatchGeneration(context.WithoutCancel(ctx), eventID); err != nil {
			j.log.Warn("failed to invalidate match cache", "event_id", eventID, "err", err)
		}
	}

	events.Emit(ctx, j.publisher, j.log, events.MatchRecomputed, 0, map[string]any{
		"event_id":    eventID,
		"epoch":       res.Epoch,
		"registrants": res.Registrants,
		"persisted":   res.Persisted,
	})
}

// Compute scores every ordered pair of profiles and keeps those at or above
// the threshold. It performs no I/O. Output is sorted by (UserID,
// Score desc, MatchedUserID) and does not depend on input order or on the
// worker count. The second return value is the number of pairs scored.
func (j *Job) Compute(ctx context.Context, profiles []db.Profile) ([]db.Match, int, error) {
	sorted := make([]db.Profile, len(profiles))
	copy(sorted, profiles)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].ID < sorted[b].ID })

	if err := validateAll(sorted); err != nil {
		return nil, 0, err
	}

	threshold := *j.opts.Threshold
	var idx *candidateIndex
	if threshold > 0 {
		idx = newCandidateIndex(sorted)
	}

	rowsByViewer := make([][]db.Match, len(sorted))
	scoredByViewer := make([]int, len(sorted))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.opts.Workers)
	for i := range sorted {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			var others []int
			if idx != nil {
				others = idx.candidates(i, sorted[i])
			} else {
				others = allExcept(len(sorted), i)
			}

			var row []db.Match
			for _, k := range others {
				res, err := Score(sorted[i], sorted[k])
				if err != nil {
					return err
				}
				scoredByViewer[i]++
				if res.Score < threshold {
					continue
				}
				row = append(row, db.Match{
					UserID:        sorted[i].ID,
					MatchedUserID: sorted[k].ID,
					Score:         res.Score,
					Reasons:       res.Reasons,
				})
			}
			sort.SliceStable(row, func(a, b int) bool {
				if row[a].Score != row[b].Score {
					return row[a].Score > row[b].Score
				}
				return row[a].MatchedUserID < row[b].MatchedUserID
			})
			rowsByViewer[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if svcErr.KindOf(err) != "" {
			return nil, 0, err
		}
		return nil, 0, svcErr.Transient(recomputeOp, err)
	}

	var out []db.Match
	scored := 0
	for i := range rowsByViewer {
		out = append(out, rowsByViewer[i]...)
		scored += scoredByViewer[i]
	}
	return out, scored, nil
}

func validateAll(profiles []db.Profile) error {
	for i, p := range profiles {
		if p.ID == 0 {
			return svcErr.Invalid(recomputeOp, "registrant without profile id")
		}
		if i > 0 && profiles[i-1].ID == p.ID {
			return svcErr.Invalid(recomputeOp, fmt.Sprintf("profile %d registered twice", p.ID))
		}
		for _, in := range p.Interests {
			if normalize(in) == "" {
				return svcErr.Invalid(recomputeOp, fmt.Sprintf("profile %d has a blank interest", p.ID))
			}
		}
	}
	return nil
}

func allExcept(n, i int) []int {
	out := make([]int, 0, n-1)
	for k := 0; k < n; k++ {
		if k != i {
			out = append(out, k)
		}
	}
	return out
}

func transient(err error) error {
	if svcErr.KindOf(err) != "" {
		return err
	}
	return svcErr.Transient(recomputeOp, err)
}
