package types

import "fmt"

// FormatMiB renders a size reported in MiB, switching to Gi and Ti for
// larger values
func FormatMiB(mib uint64) string {
	const (
		gi = 1024
		ti = 1024 * gi
	)

	switch {
	case mib >= ti:
		return fmt.Sprintf("%.1fTi", float64(mib)/ti)
	case mib >= gi:
		return fmt.Sprintf("%.1fGi", float64(mib)/gi)
	default:
		return fmt.Sprintf("%dMi", mib)
	}
}
