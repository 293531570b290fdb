// Package callbacks decodes partner webhook records from the callbacks
// topic and feeds them into the orchestrator.
package callbacks

import (
	// Go Internal Packages
	"context"
	"encoding/json"

	// Local Packages
	models "remit-orchestrator/models"

	// External Packages
	"go.uber.org/zap"
)

// Ingestor applies a partner-reported leg outcome. The orchestrator
// implements it.
type Ingestor interface {
	IngestCallback(ctx context.Context, leg models.Leg, legReference string, outcome models.LegOutcome) error
}

type Processor struct {
	Logger   *zap.Logger
	Ingestor Ingestor
}

func NewProcessor(logger *zap.Logger, ingestor Ingestor) *Processor {
	return &Processor{Logger: logger, Ingestor: ingestor}
}

// ProcessRecords ingests each callback record and returns the ones that
// could not be decoded or applied, for dead-lettering. Duplicate and stale
// outcomes are absorbed by the orchestrator and do not count as failures.
func (p *Processor) ProcessRecords(ctx context.Context, records []models.Record) []models.Record {
	var failed []models.Record
	for _, record := range records {
		var event models.CallbackEvent
		if err := json.Unmarshal(record.Value, &event); err != nil {
			p.Logger.Error("failed to unmarshal callback event", zap.Error(err))
			failed = append(failed, record)
			continue
		}

		leg := models.Leg(event.Leg)
		switch leg {
		case models.LegCollection, models.LegConversion, models.LegDisbursement:
		default:
			p.Logger.Error("callback for unknown leg", zap.String("leg", event.Leg))
			failed = append(failed, record)
			continue
		}

		if err := p.Ingestor.IngestCallback(ctx, leg, event.LegReference, event.ToOutcome()); err != nil {
			p.Logger.Error("failed to ingest callback",
				zap.String("leg", event.Leg),
				zap.String("leg_reference", event.LegReference), zap.Error(err))
			failed = append(failed, record)
		}
	}
	return failed
}
