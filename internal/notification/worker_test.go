package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func response(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(""))}
}

const subscriptionQuery = `SELECT .* FROM "push_subscriptions".*JOIN .*subscription_resource_mapping.*WHERE .*srm\.resource_id = \$1`

const resourceNameQuery = `SELECT "name" FROM "resources" WHERE id = \$1 ORDER BY "resources"."id" LIMIT \$[0-9]+`

func subscriptionRows(endpoint string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
		AddRow(endpoint, "test_p256dh", "test_auth", time.Now())
}

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{})

	wp.Dispatch("hall-a-1")

	select {
	case job := <-wp.jobs:
		assert.Equal(t, "hall-a-1", job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DispatchDropsWhenFull(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{})

	for i := 0; i < cap(wp.jobs)+3; i++ {
		wp.Dispatch(fmt.Sprintf("t%d", i))
	}
	assert.Len(t, wp.jobs, cap(wp.jobs))
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				var msg Message
				assert.NoError(t, json.Unmarshal(payload, &msg))
				assert.Equal(t, Message{ResourceID: "hall-a-1", Title: "Table free", Body: "Hall A-1 is free now!"}, msg)
				return response(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs("hall-a-1").
			WillReturnRows(subscriptionRows("https://example.com/push"))
		mock.ExpectQuery(resourceNameQuery).
			WithArgs("hall-a-1", 1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Hall A-1"))

		wp.Dispatch("hall-a-1")
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return response(http.StatusGone), nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs("window").
			WillReturnRows(subscriptionRows("https://example.com/expired"))
		mock.ExpectQuery(resourceNameQuery).
			WithArgs("window", 1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Window Table"))

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "subscription_resource_mapping"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch("window")

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("falls back to resource ID when lookup fails", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				var msg Message
				assert.NoError(t, json.Unmarshal(payload, &msg))
				assert.Equal(t, "vip-3 is free now!", msg.Body)
				return response(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(subscriptionQuery).
			WithArgs("vip-3").
			WillReturnRows(subscriptionRows("https://example.com/fallback"))
		mock.ExpectQuery(resourceNameQuery).
			WithArgs("vip-3", 1).
			WillReturnError(fmt.Errorf("resource not found"))

		wp.Dispatch("vip-3")
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
