// Package seed loads a demo dataset: one supervisor, twelve fellows with
// recorded sessions, and one transcript carrying high-concern language so
// the full review flow can be exercised locally.
package seed

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tumainilabs/session_copilot/internal/domain"
	"github.com/tumainilabs/session_copilot/internal/store"
)

// DemoSupervisorID is stable across seed runs so the API can be exercised
// with a known X-Supervisor-ID value.
const DemoSupervisorID = "sup-demo"

type fellowSeed struct {
	name        string
	groupID     string
	finalStatus string
	highConcern bool
}

var fellows = []fellowSeed{
	{name: "Amina Odhiambo", groupID: "nairobi-east-1"},
	{name: "Brian Mwangi", groupID: "nairobi-east-1", finalStatus: domain.StatusSafe},
	{name: "Cynthia Wanjiru", groupID: "nairobi-east-2"},
	{name: "David Otieno", groupID: "nairobi-east-2", finalStatus: domain.StatusFlaggedForReview},
	{name: "Esther Njeri", groupID: "nairobi-west-1"},
	{name: "Felix Kiprop", groupID: "nairobi-west-1"},
	{name: "Grace Achieng", groupID: "nairobi-west-2", finalStatus: domain.StatusSafe},
	{name: "Hassan Abdi", groupID: "nairobi-west-2"},
	{name: "Irene Chebet", groupID: "kisumu-central-1"},
	{name: "James Kamau", groupID: "kisumu-central-1", highConcern: true},
	{name: "Koki Mutua", groupID: "kisumu-central-2"},
	{name: "Lydia Wambui", groupID: "kisumu-central-2", finalStatus: domain.StatusRisk},
}

// Run inserts the demo dataset. Sessions are staggered backwards from now,
// one per day, newest first. Reseeding an already-seeded database is a
// no-op and returns 0.
func Run(st *store.Store, now time.Time) (int, error) {
	existing, err := st.ListSessions(store.ListFilter{})
	if err != nil {
		return 0, fmt.Errorf("check for existing demo data: %w", err)
	}
	for _, item := range existing {
		if item.SupervisorID == DemoSupervisorID {
			return 0, nil
		}
	}

	for i, fellow := range fellows {
		occurredAt := now.UTC().Add(-time.Duration(i) * 24 * time.Hour).Format(time.RFC3339)
		session := domain.Session{
			ID:             uuid.NewString(),
			SupervisorID:   DemoSupervisorID,
			FellowName:     fellow.name,
			GroupID:        fellow.groupID,
			OccurredAtUTC:  occurredAt,
			TranscriptText: buildTranscript(fellow),
			FinalStatus:    fellow.finalStatus,
		}
		if err := st.CreateSession(session); err != nil {
			return i, fmt.Errorf("seed session for %s: %w", fellow.name, err)
		}
	}
	return len(fellows), nil
}

func buildTranscript(fellow fellowSeed) string {
	firstName := strings.Fields(fellow.name)[0]
	turns := []string{
		"Facilitator: Karibu everyone, welcome back to our Growth Mindset circle. How was your week, " + firstName + "?",
		firstName + ": It was okay. The exams were hard but I kept trying like we discussed.",
		"Facilitator: That is exactly it. Remember, the brain is like a muscle. Every time you struggle with a hard problem, it grows stronger.",
		firstName + ": My maths teacher returned our tests. I failed the first one but my retake was better.",
		"Facilitator: Thank you for sharing that. What did you do differently between the two tests?",
		firstName + ": I practiced the problems I got wrong instead of avoiding them.",
		"Facilitator: That is learning from failure, the skill we practiced last session. Mistakes are information, not verdicts.",
		firstName + ": I also helped my desk mate with fractions. Teaching it made me understand it better.",
	}
	if fellow.highConcern {
		turns = append(turns,
			"Facilitator: Before we close, how are you feeling in yourself this week?",
			firstName+": Honestly some days are heavy. Sometimes I feel like I just want to disappear.",
			"Facilitator: Thank you for trusting me with that, "+firstName+". Let's stay behind after the session and talk, and I will walk with you to see Madam Wanjiku.",
		)
	}
	turns = append(turns,
		"Facilitator: Wonderful work today everyone. For next week, notice one moment where a mistake taught you something.",
	)
	return strings.Join(turns, "\n\n")
}
