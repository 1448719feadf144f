package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bioledger/bioregistry/canonical"
	"github.com/bioledger/bioregistry/interfaces"
)

// ThroughputResult reports one concurrency level of the mixed workload.
type ThroughputResult struct {
	Concurrency int     `json:"concurrency"`
	Operations  int     `json:"operations"`
	Reads       int     `json:"reads"`
	Writes      int     `json:"writes"`
	Seconds     float64 `json:"seconds"`
	OpsPerSec   float64 `json:"ops_per_sec"`
}

// MeasureThroughput runs a 70% read / 30% write workload at each concurrency
// level. The read pool is frozen before execution so writes performed during
// the run cannot bias the read distribution; all writes funnel through the
// registry's single-writer queue, which also keeps identifier minting
// collision-free.
func (h *Harness) MeasureThroughput(ctx context.Context, levels []int, opsPerWorker int) ([]ThroughputResult, error) {
	if len(h.pool) == 0 {
		return nil, fmt.Errorf("no materialized materials to measure against")
	}
	if opsPerWorker <= 0 {
		return nil, fmt.Errorf("opsPerWorker must be positive")
	}

	// Freeze the read pool for the duration of the measurement.
	pool := h.Pool()

	var results []ThroughputResult
	for _, level := range levels {
		if level <= 0 {
			return nil, fmt.Errorf("concurrency level must be positive")
		}

		var wg sync.WaitGroup
		errCh := make(chan error, level)
		start := time.Now()
		reads, writes := 0, 0
		var mu sync.Mutex

		for worker := 0; worker < level; worker++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				localReads, localWrites := 0, 0
				for op := 0; op < opsPerWorker; op++ {
					target := pool[(worker*opsPerWorker+op)%len(pool)]
					if op%10 < 7 {
						if _, err := h.reg.Material(target); err != nil {
							errCh <- err
							return
						}
						localReads++
					} else {
						// Owner-independent write: admin toggles quarantine.
						status := interfaces.StatusQuarantined
						if op%2 == 1 {
							status = interfaces.StatusActive
						}
						receipt, err := h.reg.SetStatusByAuthority(ctx, h.admin, target, status, canonical.HashBytes([]byte("throughput")))
						if err != nil {
							// Terminal materials reject status changes; the
							// write still traversed the queue, count it.
							if !isExpectedConflict(err) {
								errCh <- err
								return
							}
						} else if !receipt.Final() {
							errCh <- interfaces.ErrReceiptNotFinal
							return
						}
						localWrites++
					}
				}
				mu.Lock()
				reads += localReads
				writes += localWrites
				mu.Unlock()
			}(worker)
		}
		wg.Wait()
		elapsed := time.Since(start)

		select {
		case err := <-errCh:
			return nil, fmt.Errorf("throughput worker failed: %w", err)
		default:
		}

		total := reads + writes
		results = append(results, ThroughputResult{
			Concurrency: level,
			Operations:  total,
			Reads:       reads,
			Writes:      writes,
			Seconds:     elapsed.Seconds(),
			OpsPerSec:   float64(total) / elapsed.Seconds(),
		})
	}
	return results, nil
}

func isExpectedConflict(err error) bool {
	return errors.Is(err, interfaces.ErrStateConflict)
}

// ScalingResult reports read latency at one registry population size.
type ScalingResult struct {
	Materials    int     `json:"materials"`
	Registered   int     `json:"registered"`
	GetMeanMs    float64 `json:"get_mean_ms"`
	SliceMeanMs  float64 `json:"slice_mean_ms"`
	VerifyMeanMs float64 `json:"verify_mean_ms"`
}

// MeasureScaling registers materials up to each target size and samples read
// latency. Registration is incremental: each scale point adds only the
// difference over the previous one, never re-registering the existing
// population.
func (h *Harness) MeasureScaling(ctx context.Context, targets []int, samples int) ([]ScalingResult, error) {
	if samples <= 0 {
		return nil, fmt.Errorf("samples must be positive")
	}

	registered := make([]string, 0)
	var results []ScalingResult
	for _, target := range targets {
		if target < len(registered) {
			return nil, fmt.Errorf("scale targets must be non-decreasing")
		}
		added := 0
		for len(registered) < target {
			metadataHash := canonical.HashBytes([]byte(fmt.Sprintf("scale-material-%d", len(registered))))
			id, receipt, err := h.reg.RegisterMaterial(ctx, h.admin, interfaces.MaterialPlasmid, metadataHash, "scale-lab")
			if err != nil {
				return nil, fmt.Errorf("scaling registration failed: %w", err)
			}
			if err := requireFinal(receipt); err != nil {
				return nil, err
			}
			registered = append(registered, id)
			added++
		}

		var getTotal, sliceTotal, verifyTotal time.Duration
		for i := 0; i < samples; i++ {
			target := registered[i%len(registered)]

			start := time.Now()
			if _, err := h.reg.Material(target); err != nil {
				return nil, err
			}
			getTotal += time.Since(start)

			start = time.Now()
			if _, err := h.reg.HistorySlice(target, 0, 16); err != nil {
				return nil, err
			}
			sliceTotal += time.Since(start)

			start = time.Now()
			if _, err := h.ver.VerifyMaterial(target); err != nil {
				return nil, err
			}
			verifyTotal += time.Since(start)
		}

		ms := func(d time.Duration) float64 {
			return float64(d.Nanoseconds()) / 1e6 / float64(samples)
		}
		results = append(results, ScalingResult{
			Materials:    len(registered),
			Registered:   added,
			GetMeanMs:    ms(getTotal),
			SliceMeanMs:  ms(sliceTotal),
			VerifyMeanMs: ms(verifyTotal),
		})
	}
	return results, nil
}
