package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/pflag"

	"go.alexhamlin.co/inflight/internal/delay"
	"go.alexhamlin.co/inflight/internal/log"
	"go.alexhamlin.co/inflight/internal/pool"
)

var (
	concurrency int
	count       int
	start       int
	step        int
	maxDelay    time.Duration
	failEvery   int
	onError     string
	background  bool
	verbose     bool
)

var actions = map[string]pool.Action{
	"default": pool.ActionDefault,
	"skip":    pool.ActionSkip,
	"stop":    pool.ActionStop,
}

var logger = log.Component("inflight")

func main() {
	pflag.IntVarP(&concurrency, "concurrency", "c", 4, "maximum number of items in flight")
	pflag.IntVarP(&count, "count", "n", 20, "number of integers to process when no items are given")
	pflag.IntVar(&start, "start", 0, "first integer to process when no items are given")
	pflag.IntVar(&step, "step", 1, "distance between integers when no items are given")
	pflag.DurationVar(&maxDelay, "max-delay", 200*time.Millisecond, "upper bound of the random delay for each item")
	pflag.IntVar(&failEvery, "fail-every", 0, "fail every nth item to start (0 to never fail)")
	pflag.StringVar(&onError, "on-error", "default", "how to handle a failed item: default, skip, or stop")
	pflag.BoolVar(&background, "background", false, "drive the run in the background and report progress")
	pflag.BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [items...]\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if verbose {
		log.EnableVerbose()
	}

	action, ok := actions[onError]
	if !ok {
		names := lo.Keys(actions)
		slices.Sort(names)
		logger.Printf("invalid --on-error %q: must be one of %s", onError, strings.Join(names, ", "))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	items := lo.Compact(lo.Map(pflag.Args(), func(arg string, _ int) string {
		return strings.TrimSpace(arg)
	}))

	var err error
	if len(items) > 0 {
		err = runItems(ctx, items, action)
	} else {
		err = runRange(ctx, action)
	}
	if err != nil {
		logger.Printf("%v", err)
		os.Exit(1)
	}
}

func runItems(ctx context.Context, items []string, action pool.Action) error {
	e, err := pool.ForEach(concurrency, slices.Values(items), process[string](), options(ctx)...)
	if err != nil {
		return err
	}
	return drive(ctx, e, action)
}

func runRange(ctx context.Context, action pool.Action) error {
	e, err := pool.ForRange(concurrency, start, start+count*step, step, process[int](), options(ctx)...)
	if err != nil {
		return err
	}
	return drive(ctx, e, action)
}

func options(ctx context.Context) []pool.Option {
	return []pool.Option{
		pool.WithContext(ctx),
		pool.WithName("pool"),
		pool.WithPanicToError(background),
	}
}

// outcome is the result of processing a single item.
type outcome struct {
	Item string
	Took time.Duration
}

// process returns a factory that waits for a random delay before reporting
// its item as processed, failing every failEvery-th call.
func process[S any]() pool.Factory[S, outcome] {
	var calls atomic.Int64
	return func(ctx context.Context, src S) (outcome, error) {
		item := fmt.Sprint(src)
		n := calls.Add(1)

		var d time.Duration
		if maxDelay > 0 {
			d = rand.N(maxDelay + 1)
		}
		logger.Verbosef("processing %s for %v", item, d)
		if err := delay.For(ctx, d); err != nil {
			return outcome{}, fmt.Errorf("item %s: %w", item, err)
		}

		if failEvery > 0 && n%int64(failEvery) == 0 {
			return outcome{}, fmt.Errorf("item %s: simulated failure", item)
		}
		return outcome{Item: item, Took: d}, nil
	}
}

func drive[S any](ctx context.Context, e *pool.Engine[S, outcome], action pool.Action) error {
	var failures []error
	e.SetErrorHandler(func(err error, _ *pool.Engine[S, outcome], _ pool.Reason) pool.Action {
		failures = append(failures, err)
		if action != pool.ActionDefault {
			logger.Printf("%v", err)
		}
		return action
	})

	begin := time.Now()
	var (
		results []outcome
		err     error
	)
	if background {
		err = driveBackground(ctx, e)
	} else {
		results, err = driveForeground(ctx, e)
	}

	summarize(e, results, len(failures), time.Since(begin))
	return err
}

func driveForeground[S any](ctx context.Context, e *pool.Engine[S, outcome]) ([]outcome, error) {
	var results []outcome
	for o, err := range e.All(ctx) {
		if err != nil {
			return results, err
		}
		results = append(results, o)
		fmt.Printf("%s\t%v\n", o.Item, o.Took)
	}
	return results, nil
}

func driveBackground[S any](ctx context.Context, e *pool.Engine[S, outcome]) error {
	job := e.Start()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-job.Done():
			return job.Err()
		case <-ticker.C:
			stats := e.Stats()
			logger.Printf("%d started, %d done, %d in flight", stats.Pulled, stats.Claimed, stats.Running)
		case <-ctx.Done():
			logger.Printf("interrupted; waiting for %d items in flight", e.Stats().Running)
			// The factories share ctx, so the job settles after its current step.
			if err := e.Stop().Wait(context.Background()); err != nil {
				return err
			}
			s, err := e.Open()
			if err != nil {
				return err
			}
			s.Abort(ctx.Err())
			return ctx.Err()
		}
	}
}

func summarize[S any](e *pool.Engine[S, outcome], results []outcome, failed int, elapsed time.Duration) {
	stats := e.Stats()
	summary := []string{
		strconv.FormatUint(stats.Claimed, 10) + " processed",
		strconv.Itoa(failed) + " failed",
		"elapsed " + elapsed.Round(time.Millisecond).String(),
	}
	if len(results) > 0 {
		total := lo.SumBy(results, func(o outcome) time.Duration { return o.Took })
		slowest := lo.MaxBy(results, func(a, b outcome) bool { return a.Took > b.Took })
		summary = append(summary,
			"mean delay "+(total/time.Duration(len(results))).Round(time.Millisecond).String(),
			"slowest "+slowest.Item,
		)
	}
	if e.Failed() {
		summary = append(summary, "run failed")
	}
	fmt.Println(strings.Join(summary, ", "))
}
