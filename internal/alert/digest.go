package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/your-org/momet-screener/internal/datastore"
)

// DigestSubject renders the subject line for one day's alert digest.
func DigestSubject(date time.Time) string {
	return fmt.Sprintf("Signal digest for %s", date.Format("2006-01-02"))
}

// DigestBody renders the plain-text digest of one day's alerts. An empty row
// set yields a short "no signals" body so the daily mail is still sent.
func DigestBody(date time.Time, rows []datastore.AlertDigestRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Signals detected on %s\n\n", date.Format("2006-01-02"))

	if len(rows) == 0 {
		b.WriteString("No signals today.\n")
		return b.String()
	}

	for _, row := range rows {
		fmt.Fprintf(&b, "%-10s %-20s %s", row.SymbolCode, row.ScenarioName, row.Codes)
		if row.RatioP.Valid {
			fmt.Fprintf(&b, "  ratio=%s%%", row.RatioP.Decimal.StringFixed(2))
		}
		if row.AmpH.Valid {
			fmt.Fprintf(&b, "  amp=%s%%", row.AmpH.Decimal.StringFixed(2))
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\n%d signal(s) in total.\n", len(rows))
	return b.String()
}
