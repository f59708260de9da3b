package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"diagload/internal/storage"
)

// ExportSummary writes <prefix>_summary.json.
func ExportSummary(rec storage.RunRecord, prefix string) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(prefix+"_summary.json", data, 0o644)
}

// ExportCounters writes <prefix>_counters.csv, one row per counter cell.
func ExportCounters(rec storage.RunRecord, prefix string) error {
	f, err := os.Create(prefix + "_counters.csv")
	if err != nil {
		return err
	}
	defer f.Close()

	if err := writeCounters(f, rec); err != nil {
		return err
	}
	return f.Close()
}

func writeCounters(out io.Writer, rec storage.RunRecord) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"run_id", "counter", "endpoint", "tag", "value"}); err != nil {
		return err
	}
	for _, c := range rec.Counters {
		row := []string{rec.ID, c.Name, c.Endpoint, c.Tag, strconv.FormatFloat(c.Value, 'f', -1, 64)}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// Report writes every export for prefix and says where they went.
func Report(w io.Writer, rec storage.RunRecord, prefix string) error {
	if prefix == "" {
		return nil
	}

	fmt.Fprintf(w, "\n💾 Generating reports with prefix: %s\n", prefix)
	if err := ExportSummary(rec, prefix); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if err := ExportCounters(rec, prefix); err != nil {
		return fmt.Errorf("write counters: %w", err)
	}
	fmt.Fprintf(w, "✅ Reports saved to %s{_summary.json,_counters.csv}\n", prefix)
	return nil
}
