package evaluation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bioledger/bioregistry/canonical"
	"github.com/bioledger/bioregistry/interfaces"
	"github.com/bioledger/bioregistry/workload"
)

// LatencyStats summarizes the latency distribution of one operation in
// milliseconds. Samples are taken at finality: each measured write is
// asserted to carry a committed receipt before its duration counts.
type LatencyStats struct {
	Op         string  `json:"op"`
	Iterations int     `json:"iterations"`
	P50        float64 `json:"p50_ms"`
	P95        float64 `json:"p95_ms"`
	P99        float64 `json:"p99_ms"`
	Mean       float64 `json:"mean_ms"`
	StdDev     float64 `json:"stddev_ms"`
}

func summarize(op string, samples []time.Duration) LatencyStats {
	sorted := make([]float64, len(samples))
	for i, d := range samples {
		sorted[i] = float64(d.Nanoseconds()) / 1e6
	}
	sort.Float64s(sorted)

	percentile := func(p float64) float64 {
		if len(sorted) == 0 {
			return 0
		}
		idx := int(math.Ceil(p*float64(len(sorted)))) - 1
		if idx < 0 {
			idx = 0
		}
		return sorted[idx]
	}

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	var variance float64
	for _, v := range sorted {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(sorted))

	return LatencyStats{
		Op:         op,
		Iterations: len(sorted),
		P50:        percentile(0.50),
		P95:        percentile(0.95),
		P99:        percentile(0.99),
		Mean:       mean,
		StdDev:     math.Sqrt(variance),
	}
}

// BenchmarkOperations measures per-operation latency over the given number
// of iterations against a materialized harness. Write operations run against
// freshly registered bench materials so the measured pool stays untouched.
func (h *Harness) BenchmarkOperations(ctx context.Context, iterations int) ([]LatencyStats, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive")
	}
	if len(h.pool) == 0 {
		return nil, fmt.Errorf("no materialized materials to benchmark against")
	}

	pool := h.Pool()
	var stats []LatencyStats

	// register_material
	registered := make([]string, 0, iterations)
	samples := make([]time.Duration, 0, iterations)
	for i := 0; i < iterations; i++ {
		metadataHash := canonical.HashBytes([]byte(fmt.Sprintf("bench-material-%d", i)))
		start := time.Now()
		id, receipt, err := h.reg.RegisterMaterial(ctx, h.admin, interfaces.MaterialCellLine, metadataHash, "bench-lab")
		elapsed := time.Since(start)
		if err != nil {
			return nil, fmt.Errorf("register_material benchmark failed: %w", err)
		}
		if err := requireFinal(receipt); err != nil {
			return nil, err
		}
		samples = append(samples, elapsed)
		registered = append(registered, id)
	}
	stats = append(stats, summarize("register_material", samples))

	// issue_credential
	qcSigner := h.signers[workload.QCIssuerLabel]
	samples = samples[:0]
	for i := 0; i < iterations; i++ {
		target := registered[i%len(registered)]
		params := interfaces.IssueCredentialParams{
			MaterialID:     target,
			CredentialType: interfaces.CredentialQCMyco,
			CommitmentHash: canonical.HashBytes([]byte(fmt.Sprintf("bench-commitment-%d", i))),
			ArtifactCID:    fmt.Sprintf("bench-artifact-%d", i),
			ArtifactHash:   canonical.HashBytes([]byte(fmt.Sprintf("bench-artifact-%d", i))),
			IssuerOrg:      "bench-qc",
		}
		start := time.Now()
		_, receipt, err := h.reg.IssueCredential(ctx, qcSigner.Address(), params)
		elapsed := time.Since(start)
		if err != nil {
			return nil, fmt.Errorf("issue_credential benchmark failed: %w", err)
		}
		if err := requireFinal(receipt); err != nil {
			return nil, err
		}
		samples = append(samples, elapsed)
	}
	stats = append(stats, summarize("issue_credential", samples))

	// set_status_by_authority (quarantine on even iterations, active on odd;
	// each iteration targets its own bench material)
	samples = samples[:0]
	for i := 0; i < iterations; i++ {
		target := registered[i%len(registered)]
		status := interfaces.StatusQuarantined
		if i%2 == 1 {
			status = interfaces.StatusActive
		}
		start := time.Now()
		receipt, err := h.reg.SetStatusByAuthority(ctx, h.admin, target, status, canonical.HashBytes([]byte("bench")))
		elapsed := time.Since(start)
		if err != nil {
			return nil, fmt.Errorf("set_status benchmark failed: %w", err)
		}
		if err := requireFinal(receipt); err != nil {
			return nil, err
		}
		samples = append(samples, elapsed)
	}
	stats = append(stats, summarize("set_status_by_authority", samples))

	// get_material
	samples = samples[:0]
	for i := 0; i < iterations; i++ {
		start := time.Now()
		if _, err := h.reg.Material(pool[i%len(pool)]); err != nil {
			return nil, fmt.Errorf("get_material benchmark failed: %w", err)
		}
		samples = append(samples, time.Since(start))
	}
	stats = append(stats, summarize("get_material", samples))

	// get_history_slice
	samples = samples[:0]
	for i := 0; i < iterations; i++ {
		start := time.Now()
		if _, err := h.reg.HistorySlice(pool[i%len(pool)], 0, 16); err != nil {
			return nil, fmt.Errorf("get_history_slice benchmark failed: %w", err)
		}
		samples = append(samples, time.Since(start))
	}
	stats = append(stats, summarize("get_history_slice", samples))

	// verify_material
	samples = samples[:0]
	for i := 0; i < iterations; i++ {
		start := time.Now()
		if _, err := h.ver.VerifyMaterial(pool[i%len(pool)]); err != nil {
			return nil, fmt.Errorf("verify_material benchmark failed: %w", err)
		}
		samples = append(samples, time.Since(start))
	}
	stats = append(stats, summarize("verify_material", samples))

	return stats, nil
}
