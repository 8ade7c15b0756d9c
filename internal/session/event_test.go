package session

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestStepScoredEventCarriesZeroScore(t *testing.T) {
	ev := Event{Type: EventStepScored, StepID: "q1", Score: 0, Passed: false}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	payload := string(data)

	if !strings.Contains(payload, `"score":0`) {
		t.Errorf("payload %s does not carry the zero score", payload)
	}
	if !strings.Contains(payload, `"passed":false`) {
		t.Errorf("payload %s does not carry the failed flag", payload)
	}
}
