package metrics

import "sort"

// Entry is one candidate model's validation report.
type Entry struct {
	Model string `json:"model"`
	Report
}

// Rank orders entries best first: roc_auc descending, then log_loss ascending, then
// ece_10bin ascending. Full ties keep their input order. The input is not modified.
func Rank(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ROCAUC != b.ROCAUC {
			return a.ROCAUC > b.ROCAUC
		}
		if a.LogLoss != b.LogLoss {
			return a.LogLoss < b.LogLoss
		}
		return a.ECE10 < b.ECE10
	})
	return out
}
