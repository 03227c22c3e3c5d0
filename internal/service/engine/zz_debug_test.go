package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZZDebugDump(t *testing.T) {
	f := newEngineFixture(t, adverseDataset())
	scr, err := f.engine.StartScreening(context.Background(), screeningRequest(t, standardConfig()))
	require.NoError(t, err)
	for _, o := range scr.Outcomes() {
		t.Logf("outcome: type=%s state=%s reason=%q", o.InfoType, o.State, o.Reason)
	}
	for _, fd := range scr.Findings {
		t.Logf("finding: cat=%s sev=%s conf=%.2f summary=%q sources=%v", fd.Category, fd.Severity, fd.Confidence, fd.Summary, fd.Sources)
	}
	t.Logf("sources used: %v", scr.DataSourcesUsed)
}

func TestZZDebugSandboxLookup(t *testing.T) {
	d := adverseDataset()
	recs := d.Lookup("Jordan Smith", screening.CheckAdverseMedia)
	t.Logf("direct lookup: %v", recs)

	for _, p := range providers.Family(d) {
		info := p.Info()
		for _, ct := range info.SupportedChecks {
			if ct != screening.CheckAdverseMedia {
				continue
			}
			raw, err := p.Query(context.Background(), nil, ct, map[string]string{"search_term": "Jordan Smith"})
			require.NoError(t, err)
			recs, err := p.Normalize(raw)
			require.NoError(t, err)
			t.Logf("provider %s: %v", info.ID, recs)
		}
	}
}
