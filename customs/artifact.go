package customs

import (
	"fmt"
	"strings"
)

// ArtifactName computes the deterministic file name (without extension)
// for a retrieval artifact. The name encodes the reference triplet
// along with the shipment-lot flag, item count and operation type so
// re-runs of a retrieval overwrite rather than accumulate. index
// distinguishes per-item and per-document artifacts; pass 0 for
// whole-operation artifacts.
func ArtifactName(kind ServiceKind, p *Pedimento, index int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s_%s_%s_%s", kind, p.Aduana, p.Patente, p.Pedimento)
	fmt.Fprintf(&b, "_R%d_P%d", boolBit(p.Remesas), p.Partidas)
	if t := p.TipoOperacion; t != "" {
		fmt.Fprintf(&b, "_T%s", t)
	}
	if index > 0 {
		fmt.Fprintf(&b, "_%03d", index)
	}
	return b.String()
}

func boolBit(v bool) int {
	if v {
		return 1
	}
	return 0
}
