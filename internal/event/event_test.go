package event

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shortontech/botgate/internal/classify"
)

func TestEvent_JSON(t *testing.T) {
	t.Run("omits empty optional fields", func(t *testing.T) {
		data, err := json.Marshal(Event{EventID: "e1", Type: TypeClassification})
		if err != nil {
			t.Fatalf("failed to marshal event: %v", err)
		}
		s := string(data)
		for _, absent := range []string{`"source"`, `"path"`, `"ts"`} {
			if strings.Contains(s, absent) {
				t.Errorf("expected %s to be omitted: %s", absent, s)
			}
		}
		if !strings.Contains(s, `"verdict":{"bot":false,"rule":""}`) {
			t.Errorf("verdict should always be present: %s", s)
		}
	})

	t.Run("verdict carries rule and pattern", func(t *testing.T) {
		e := Event{Verdict: classify.Decision{Bot: true, Rule: classify.RuleBotPattern, Pattern: "googlebot"}}
		data, err := json.Marshal(e)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), `"pattern":"googlebot"`) {
			t.Errorf("pattern missing: %s", data)
		}
	})
}
