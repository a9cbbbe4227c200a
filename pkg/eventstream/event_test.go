package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/coilworks/mnemo/pkg/eventstream"
	"github.com/coilworks/mnemo/pkg/memory"
)

var _ = Describe("Event", func() {
	It("marshals TurnPersistedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.TurnPersistedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeTurnPersisted,
			EventID:       "evt_123",
			EmittedAt:     now,
			Source: eventstream.EventSource{
				UserID:  "dev-user",
				AgentID: "mnemo",
			},
			Turn: eventstream.TurnMeta{
				MemoryID:   "mem_42",
				RunID:      "a1b2c3d4e5f6",
				Model:      "claude-sonnet-4",
				ResponseID: "msg_01",
				CapturedAt: now.Add(-2 * time.Second),
				Messages: []memory.Message{
					{Role: "user", Content: "hello"},
					{Role: "assistant", Content: "hi"},
				},
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("turn"))

		turn, ok := got["turn"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(turn).To(HaveKeyWithValue("memory_id", "mem_42"))
		Expect(turn).To(HaveKeyWithValue("run_id", "a1b2c3d4e5f6"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeTurnPersisted).To(Equal("mnemo.turn.persisted"))
	})

	It("provides ErrNilTurnEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilTurnEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilTurnEvent).To(MatchError("nil turn event"))
	})
})
