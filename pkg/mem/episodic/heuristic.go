package episodic

import (
	"strings"
)

// Classification is the outcome of the memorability heuristic.
type Classification struct {
	// Memorable is true when the turn is worth writing to episodic memory
	Memorable bool

	// Type is the event type to tag the memory with
	Type EventType
}

// signal maps trigger phrases to an event type. Order matters: earlier
// entries win when several match.
type signal struct {
	eventType EventType
	phrases   []string
}

var signals = []signal{
	{EventGoal, []string{
		"my goal", "i want to", "i aim to", "i'm aiming", "i am aiming",
		"my target", "i'd like to reach", "trying to reach", "i plan to",
	}},
	{EventPreference, []string{
		"i prefer", "i like", "i love", "i hate", "i dislike", "i always",
		"i never", "i'd rather", "i would rather", "my favorite", "works best for me",
	}},
	{EventHealthEvent, []string{
		"diagnosed", "my doctor", "medication", "prescription", "symptom",
		"allergic", "allergy", "blood pressure", "injury", "injured", "surgery",
		"i weigh", "my weight is",
	}},
	{EventMilestone, []string{
		"for the first time", "finally", "i reached", "i achieved", "i completed",
		"i finished", "personal best", "new record", "milestone",
	}},
	{EventInteraction, []string{
		"remember that", "remember this", "don't forget", "keep in mind",
	}},
}

// ClassifyMemorability judges whether a turn is worth remembering and
// tags it with an event type. It is a pure function of the turn's user
// and assistant messages so it can be tested in isolation.
func ClassifyMemorability(userMsg, assistantMsg string) Classification {
	text := strings.ToLower(userMsg)

	for _, sig := range signals {
		for _, phrase := range sig.phrases {
			if strings.Contains(text, phrase) {
				return Classification{Memorable: true, Type: sig.eventType}
			}
		}
	}

	return Classification{Memorable: false, Type: EventInteraction}
}
