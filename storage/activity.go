package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"board-api/domain"
)

// ActivityFeed publishes board events to the activity queue consumed by
// downstream notification workers.
type ActivityFeed struct {
	queue *azqueue.QueueClient
}

// NewActivityFeed creates an ActivityFeed from the given connection string.
func NewActivityFeed(connStr, queueName string) (*ActivityFeed, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	queue, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &ActivityFeed{queue: queue}, nil
}

func (f *ActivityFeed) Publish(ctx context.Context, ev domain.Event) error {
	env := domain.EventEnvelope{ProjectID: ev.ProjectID, Event: ev}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = f.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
