package eventstream

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/capture"
)

// TurnSink adapts a Publisher to the capture pipeline's sink contract.
// Publishing is fire-and-forget: failures are logged and never propagate
// back into the capture path.
type TurnSink struct {
	publisher Publisher
	source    EventSource
	logger    *zap.Logger
}

// NewTurnSink creates a sink emitting one event per persisted turn.
func NewTurnSink(publisher Publisher, source EventSource, logger *zap.Logger) *TurnSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TurnSink{
		publisher: publisher,
		source:    source,
		logger:    logger,
	}
}

// TurnPersisted builds and publishes a TurnPersistedEvent.
func (s *TurnSink) TurnPersisted(turn *capture.Turn, memoryID string) {
	event := &TurnPersistedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnPersisted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        s.source,
		Turn: TurnMeta{
			MemoryID:   memoryID,
			RunID:      turn.RunID,
			Model:      turn.Model,
			ResponseID: turn.ResponseID,
			CapturedAt: turn.CapturedAt,
			Messages:   turn.Messages,
		},
	}

	if err := s.publisher.PublishTurn(context.Background(), event); err != nil {
		s.logger.Error("failed to publish turn event",
			zap.String("event_id", event.EventID),
			zap.String("memory_id", memoryID),
			zap.Error(err),
		)
		return
	}

	s.logger.Debug("published turn event",
		zap.String("event_id", event.EventID),
		zap.String("memory_id", memoryID),
	)
}
