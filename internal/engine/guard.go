package engine

import (
	"strings"

	"github.com/rotisserie/eris"
)

// denylist holds SQL keywords that unconditionally reject a candidate
// query. The scan is a coarse case-insensitive substring match; false
// positives on identifiers containing these words are an accepted tradeoff.
var denylist = []string{"DROP", "DELETE", "INSERT", "UPDATE", "ALTER", "CREATE"}

// Guard rejects a candidate query containing any denylisted keyword.
// The returned error names the offending keyword.
func Guard(sql string) error {
	upper := strings.ToUpper(sql)
	for _, kw := range denylist {
		if strings.Contains(upper, kw) {
			return eris.Errorf("guard: disallowed keyword %s in query", kw)
		}
	}
	return nil
}
