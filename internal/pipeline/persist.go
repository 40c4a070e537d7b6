package pipeline

import (
	"context"

	"github.com/example/sms-dispatch/internal/models"
)

// persist routes one drained batch. Each sub-list is written to the reporting
// sink independently; if any write fails, the whole original batch is
// re-written best effort with status FAIL and failure events are emitted for
// every record, so no outcome disappears from the event stream.
func (p *Pipeline) persist(ctx context.Context, batch []*models.PipelineRecord) {
	if len(batch) == 0 {
		return
	}

	if err := p.persistRouted(ctx, batch); err != nil {
		p.persistError.Add(1)
		p.logger.Error().Err(err).Int("batch", len(batch)).Msg("error while persisting batch, falling back to FAIL write")
		if fbErr := p.sink.BatchWrite(ctx, batch, models.StatusFail); fbErr != nil {
			p.logger.Error().Err(fbErr).Int("batch", len(batch)).Msg("fallback FAIL write also failed")
		}
		for _, rec := range batch {
			p.publishFail(ctx, rec, err.Error())
		}
		return
	}
	p.persisted.Add(uint64(len(batch)))
}

func (p *Pipeline) persistRouted(ctx context.Context, batch []*models.PipelineRecord) error {
	var rejected, test, controlGroup, realSend []*models.PipelineRecord
	for _, rec := range batch {
		switch {
		case rec.Rejected():
			rejected = append(rejected, rec)
		case rec.Computed.TestModeEnabled:
			test = append(test, rec)
		case rec.Computed.ControlGroup:
			controlGroup = append(controlGroup, rec)
		default:
			realSend = append(realSend, rec)
		}
	}

	if len(rejected) > 0 {
		p.logger.Info().Int("count", len(rejected)).Msg("persisting quota-rejected requests")
		if err := p.sink.BatchWrite(ctx, rejected, models.StatusQuotaExceeded); err != nil {
			return err
		}
		for _, rec := range rejected {
			p.publishFail(ctx, rec, string(rec.Computed.QuotaCheck))
		}
	}

	if len(test) > 0 {
		p.logger.Info().Int("count", len(test)).Msg("persisting test-mode requests")
		if err := p.sink.BatchWrite(ctx, test, models.StatusSuccess); err != nil {
			return err
		}
		for _, rec := range test {
			p.publishSuccess(ctx, rec, "Test mode request persisted.")
		}
	}

	// Control group actors are real actors deliberately excluded from the
	// live send; they are logged as if processed.
	if len(controlGroup) > 0 {
		p.logger.Info().Int("count", len(controlGroup)).Msg("persisting control-group requests")
		if err := p.sink.BatchWrite(ctx, controlGroup, models.StatusSuccess); err != nil {
			return err
		}
		for _, rec := range controlGroup {
			p.publishSuccess(ctx, rec, "Control group request persisted.")
		}
	}

	if len(realSend) > 0 {
		for _, rec := range realSend {
			result, err := p.submitter.Submit(ctx, rec)
			if err != nil {
				// One message's failure never aborts its batch-mates.
				p.sendFailures.Add(1)
				p.logger.Error().Err(err).
					Str("actor_id", rec.Base.ActorID).
					Msg("error while sending message")
				continue
			}
			rec.MessageID = result.MessageID
			rec.SegmentIDs = result.SegmentIDs
			p.submitted.Add(1)
			p.logger.Info().Str("message_id", result.MessageID).Msg("message submitted")
			p.publishSuccess(ctx, rec, "Message submitted.")
		}
		// The whole sub-list is written SUCCESS regardless of individual
		// send failures; SendFailures in Stats tracks the discrepancy.
		if err := p.sink.BatchWrite(ctx, realSend, models.StatusSuccess); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) publishSuccess(ctx context.Context, rec *models.PipelineRecord, detail string) {
	if err := p.publisher.PublishResponse(ctx, models.NewSuccessEvent(rec, detail)); err != nil {
		p.logger.Warn().Err(err).Str("actor_id", rec.Base.ActorID).Msg("failed to publish success event")
	}
}

func (p *Pipeline) publishFail(ctx context.Context, rec *models.PipelineRecord, reason string) {
	if err := p.publisher.PublishResponse(ctx, models.NewFailEvent(rec, reason)); err != nil {
		p.logger.Warn().Err(err).Str("actor_id", rec.Base.ActorID).Msg("failed to publish failure event")
	}
}
