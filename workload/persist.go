package workload

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// WriteMaterialsJSON persists the full dataset, ground truth included, for
// reproducibility.
func WriteMaterialsJSON(ds *Dataset, path string) error {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write dataset file: %w", err)
	}
	return nil
}

// ReadMaterialsJSON loads a previously persisted dataset.
func ReadMaterialsJSON(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset file: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	return &ds, nil
}

// WriteExpectationsCSV persists the per-material expected outcomes: ground
// truth labels plus the expected on-chain and full verification verdicts.
func WriteExpectationsCSV(ds *Dataset, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create expectations file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"index", "material_type", "status", "anomalies", "expect_onchain_pass", "expect_full_pass"}); err != nil {
		return err
	}
	for i := range ds.Specs {
		spec := &ds.Specs[i]
		labels := make([]string, len(spec.GroundTruth))
		for j, a := range spec.GroundTruth {
			labels[j] = string(a)
		}
		row := []string{
			strconv.Itoa(spec.Index),
			string(spec.MaterialType),
			string(spec.Status),
			strings.Join(labels, ";"),
			strconv.FormatBool(spec.ExpectOnChainPass()),
			strconv.FormatBool(spec.ExpectFullPass()),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
