package benchmark

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"concord/internal/concordance"
	"concord/internal/logging"
	"concord/internal/population"
	"concord/internal/resultstore"
	"concord/internal/runner"
)

// RunResult is everything a finished run reports.
type RunResult struct {
	Seed           int64
	PopulationSize int
	EligibleSize   int
	SampleSize     int
	ShardSize      int
	Records        []resultstore.Record
	Summary        Summary
	Tables         map[string]*concordance.Table
	Elapsed        time.Duration
	OutPath        string
}

// PrepareSample loads the population and denylist, filters, samples and
// shards. Any failure here is a FatalSetupError: the run aborts before
// a single task is dispatched. The returned seed is the one actually
// used (the config seed, or a fresh high-entropy one).
func PrepareSample(cfg *Config) ([]population.Target, *RunResult, error) {
	pop, err := population.Load(cfg.Population)
	if err != nil {
		return nil, nil, err
	}

	var deny population.Denylist
	if cfg.Denylist != "" {
		deny, err = population.LoadDenylist(cfg.Denylist)
		if err != nil {
			return nil, nil, err
		}
	}
	eligible := population.Filter(pop, deny)

	seed := entropySeed()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	sample := population.Sample(eligible, cfg.SampleSize, seed)

	shard := sample
	if cfg.Shard.Total != 0 {
		shard, err = population.Shard(sample, cfg.Shard.Index, cfg.Shard.Total)
		if err != nil {
			return nil, nil, err
		}
	}

	res := &RunResult{
		Seed:           seed,
		PopulationSize: len(pop),
		EligibleSize:   len(eligible),
		SampleSize:     len(sample),
		ShardSize:      len(shard),
		OutPath:        cfg.Out,
	}
	return shard, res, nil
}

// Run executes the whole benchmark: sample, dispatch, persist, reduce.
func Run(ctx context.Context, cfg *Config) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.New("benchmark")
	started := time.Now()

	targets, res, err := PrepareSample(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("sample prepared",
		"population", res.PopulationSize,
		"eligible", res.EligibleSize,
		"sample", res.SampleSize,
		"shard", res.ShardSize,
		"seed", res.Seed)

	engine, tools, err := cfg.BuildAnalyzers()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn("engine close", "error", err)
		}
	}()

	writer, err := resultstore.Create(cfg.Out)
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	exec := &runner.Executor{
		Engine:  engine,
		Tools:   tools,
		Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
	}
	pool := &runner.Pool{Concurrency: cfg.Concurrency}

	var mu sync.Mutex
	done := func(rec resultstore.Record) error {
		if err := writer.Append(rec); err != nil {
			return err
		}
		mu.Lock()
		res.Records = append(res.Records, rec)
		mu.Unlock()
		log.Info("target done", "origin", rec.Origin, "status", rec.Status)
		return nil
	}

	if err := pool.Run(ctx, targets, exec.Execute, done); err != nil {
		return nil, fmt.Errorf("benchmark: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	res.Summary = Summarize(res.Records, cfg.ToolNames())
	res.Tables = concordance.Compute(res.Records, cfg.ToolNames())
	res.Elapsed = time.Since(started)
	return res, nil
}

// entropySeed draws a high-entropy non-negative seed for runs that did
// not pin one. The run reports it so the sample stays reproducible.
func entropySeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.BigEndian.Uint64(b[:]) >> 1)
}
