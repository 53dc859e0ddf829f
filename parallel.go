package encrypteddata

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// ParallelConfig controls parallel verification
type ParallelConfig struct {
	// Enabled enables parallel verification
	Enabled bool

	// MaxWorkers is the maximum number of worker goroutines
	// If 0, defaults to runtime.NumCPU()
	MaxWorkers int

	// MinJobsForParallel is the minimum number of versions to use parallel processing
	// Below this threshold, sequential processing is used
	// Defaults to 4
	MinJobsForParallel int
}

// Validate checks if the parallel configuration is valid
func (p *ParallelConfig) Validate() error {
	if !p.Enabled {
		return nil // Nothing to validate if disabled
	}

	if p.MaxWorkers < 0 {
		return errors.New("parallel max workers cannot be negative")
	}
	if p.MaxWorkers > 1024 {
		return errors.New("parallel max workers must not exceed 1024")
	}
	if p.MinJobsForParallel < 1 {
		return errors.New("parallel min jobs threshold must be at least 1")
	}
	if p.MinJobsForParallel > 1000 {
		return errors.New("parallel min jobs threshold must not exceed 1000")
	}

	return nil
}

// DefaultParallelConfig returns the default parallel processing configuration
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		Enabled:            true,
		MaxWorkers:         runtime.NumCPU(),
		MinJobsForParallel: 4,
	}
}

// verifyJob is one version to check and its outcome
type verifyJob struct {
	ref VersionRef
	err error
}

// runVerifyJobs runs check over every job, filling in job.err. Unlike an
// early-exit pool every job runs, since callers want the full failure list.
func runVerifyJobs(cfg ParallelConfig, jobs []verifyJob, check func(VersionRef) error) {
	if len(jobs) == 0 {
		return
	}

	// Check if parallel processing is worth it
	if !cfg.Enabled || len(jobs) < cfg.MinJobsForParallel {
		for i := range jobs {
			jobs[i].err = safeCheck(check, jobs[i].ref)
		}
		return
	}

	numWorkers := cfg.MaxWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(jobs) {
		numWorkers = len(jobs)
	}

	var wg sync.WaitGroup
	jobChan := make(chan int, len(jobs))

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobChan {
				jobs[idx].err = safeCheck(check, jobs[idx].ref)
			}
		}()
	}

	for i := range jobs {
		jobChan <- i
	}
	close(jobChan)

	wg.Wait()
}

// safeCheck converts a panic in check into an error
func safeCheck(check func(VersionRef) error, ref VersionRef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in verification worker: %v", r)
		}
	}()
	return check(ref)
}
