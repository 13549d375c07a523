package kinesis

import (
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/ledger-event-driven/internal/infrastructure/store"
)

// ProcessBatch converts and handles every record of a Kinesis batch. Failed
// records are reported as batch item failures so Lambda redrives only those;
// MODIFY and REMOVE stream records are skipped, the event log is append-only.
func ProcessBatch(kinesisEvent events.KinesisEvent, handle func(*store.Event) error) events.KinesisEventResponse {
	var failures []events.KinesisBatchItemFailure

	for _, record := range kinesisEvent.Records {
		event, err := ConvertFromKinesisRecord(record)
		if err == nil && event == nil {
			continue
		}
		if err == nil {
			err = handle(event)
		}
		if err != nil {
			log.Printf("[Kinesis] Record %s failed: %v", record.EventID, err)
			failures = append(failures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
		}
	}

	return events.KinesisEventResponse{BatchItemFailures: failures}
}
