package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testNotification(kind billing.NotificationKind) billing.DunningNotification {
	return billing.DunningNotification{
		Kind:       kind,
		OrderID:    uuid.New(),
		StoreID:    uuid.New(),
		CustomerID: uuid.New(),
		RetryDays:  3,
		Attempt:    1,
		MaxRetries: 3,
		Reason:     "insufficient_funds",
		OccurredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestKafkaNotifier_Notify(t *testing.T) {
	t.Run("publishes the notification as json", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		n := testNotification(billing.NotificationPaymentDeclined)

		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var got billing.DunningNotification
			if err := json.Unmarshal(val, &got); err != nil {
				return err
			}
			if got.OrderID != n.OrderID || got.Kind != n.Kind || got.RetryDays != 3 {
				return errors.New("unexpected payload")
			}
			return nil
		})

		notifier := NewKafkaNotifier(producer, "billing.dunning-notifications", nil)
		require.NoError(t, notifier.Notify(context.Background(), n))
		require.NoError(t, notifier.Close())
	})

	t.Run("producer failure is returned", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

		notifier := NewKafkaNotifier(producer, "billing.dunning-notifications", nil)
		err := notifier.Notify(context.Background(), testNotification(billing.NotificationDunningComplete))

		assert.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)
		require.NoError(t, notifier.Close())
	})

	t.Run("canceled context skips the send", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		notifier := NewKafkaNotifier(producer, "billing.dunning-notifications", nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, notifier.Notify(ctx, testNotification(billing.NotificationPaymentDeclined)), context.Canceled)
		require.NoError(t, notifier.Close())
	})
}

func TestNewKafkaProducer_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaProducer(config.KafkaConfig{Enabled: true})
	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	notifier := NewLogNotifier(zap.New(core))

	declined := testNotification(billing.NotificationPaymentDeclined)
	require.NoError(t, notifier.Notify(context.Background(), declined))

	complete := testNotification(billing.NotificationDunningComplete)
	complete.Disposition = billing.DunningDispositionCancel
	require.NoError(t, notifier.Notify(context.Background(), complete))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].ContextMap()["retry_days"])
	assert.Equal(t, string(billing.DunningDispositionCancel), entries[1].ContextMap()["disposition"])
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(context.Context, billing.DunningNotification) error {
	s.calls++
	return s.err
}

func TestMultiNotifier(t *testing.T) {
	t.Run("calls every notifier", func(t *testing.T) {
		a, b := &stubNotifier{}, &stubNotifier{}
		m := NewMultiNotifier(a, nil, b)

		require.NoError(t, m.Notify(context.Background(), testNotification(billing.NotificationPaymentDeclined)))
		assert.Equal(t, 1, a.calls)
		assert.Equal(t, 1, b.calls)
	})

	t.Run("a failure does not stop delivery", func(t *testing.T) {
		boom := errors.New("boom")
		a, b := &stubNotifier{err: boom}, &stubNotifier{}
		m := NewMultiNotifier(a, b)

		err := m.Notify(context.Background(), testNotification(billing.NotificationPaymentDeclined))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, b.calls)
	})
}
