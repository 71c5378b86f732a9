package ranking

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is used in generated file names.
const TimestampLayout = "2006-01-02-15-04-05"

// ValueColumn names the value column after the ranked statistic, e.g. MEAN
// becomes Mean_Value.
func ValueColumn(statistic string) string {
	s := strings.ToLower(statistic)
	if s == "" {
		return "Value"
	}
	return strings.ToUpper(s[:1]) + s[1:] + "_Value"
}

// FileName encodes region, metric and generation time.
func FileName(q Query, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s.csv", q.Label, q.Metric, now.Format(TimestampLayout))
}

// WriteCSV writes rows as Path,<Statistic>_Value,Rank.
func WriteCSV(w io.Writer, statistic string, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Path", ValueColumn(statistic), "Rank"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.Path, strconv.FormatFloat(r.Value, 'g', -1, 64), strconv.Itoa(r.Rank)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save persists the selected rows below dir and returns the file path.
func Save(dir string, res *Result, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create ranking dir: %w", err)
	}
	path := filepath.Join(dir, FileName(res.Query, now))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create ranking file: %w", err)
	}
	if err := WriteCSV(f, res.Query.Statistic, res.Selected); err != nil {
		f.Close()
		return "", fmt.Errorf("write ranking: %w", err)
	}
	return path, f.Close()
}
