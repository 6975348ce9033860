package seed

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tumainilabs/session_copilot/internal/domain"
	"github.com/tumainilabs/session_copilot/internal/risk"
	"github.com/tumainilabs/session_copilot/internal/store"
)

func TestRunSeedsDemoData(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	count, err := Run(st, time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != len(fellows) {
		t.Fatalf("seeded %d sessions, want %d", count, len(fellows))
	}

	items, err := st.ListSessions(store.ListFilter{})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(items) != len(fellows) {
		t.Fatalf("listed %d sessions, want %d", len(items), len(fellows))
	}
	for _, item := range items {
		if item.SupervisorID != DemoSupervisorID {
			t.Fatalf("session %s has supervisor %q", item.ID, item.SupervisorID)
		}
	}

	// A pre-set human decision must surface as the display status.
	found := false
	for _, item := range items {
		if item.FellowName == "Lydia Wambui" {
			found = true
			if item.DisplayStatus != domain.StatusRisk {
				t.Fatalf("pre-set final status not derived, got %s", item.DisplayStatus)
			}
		}
	}
	if !found {
		t.Fatalf("seeded fellow missing from list")
	}

	// Reseeding must not duplicate the dataset.
	again, err := Run(st, time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again != 0 {
		t.Fatalf("reseed inserted %d sessions, want 0", again)
	}
	items, err = st.ListSessions(store.ListFilter{})
	if err != nil {
		t.Fatalf("ListSessions after reseed: %v", err)
	}
	if len(items) != len(fellows) {
		t.Fatalf("reseed changed session count to %d", len(items))
	}

	// Exactly one transcript carries the high-concern line for the
	// backstop demo.
	matcher := risk.NewLexiconMatcher()
	concern := 0
	for _, item := range items {
		session, err := st.GetSession(item.ID)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if len(risk.ScanSegments(matcher, session.TranscriptText)) > 0 {
			concern++
		}
	}
	if concern != 1 {
		t.Fatalf("expected exactly 1 high-concern transcript, got %d", concern)
	}
}
