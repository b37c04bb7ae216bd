package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"venue-billing-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Message is the JSON payload pushed to subscribed browsers.
type Message struct {
	ResourceID string `json:"resource_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// WorkerPool sends "resource is free" notifications in the background.
type WorkerPool struct {
	size    int
	jobs    chan string
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size*8),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case resourceID := <-wp.jobs:
			log.Printf("Worker %d processing resource %s", id, resourceID)
			wp.sendNotificationsForResource(ctx, resourceID)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a freed resource. A full queue drops the job rather than block
// the request that freed the resource.
func (wp *WorkerPool) Dispatch(resourceID string) {
	select {
	case wp.jobs <- resourceID:
	default:
		log.Printf("Warning: notification queue full, dropping job for resource %s", resourceID)
	}
}

func (wp *WorkerPool) sendNotificationsForResource(ctx context.Context, resourceID string) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_resource_mapping srm ON srm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("srm.resource_id = ?", resourceID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for resource %s: %v", resourceID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for resource %s", len(subscriptions), resourceID)

	label := resourceID
	var resource model.Resource
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&resource, "id = ?", resourceID).Error; err != nil {
		log.Printf("Error fetching resource %s: %v", resourceID, err)
	} else if resource.Name != "" {
		label = resource.Name
	}

	payload, err := json.Marshal(Message{
		ResourceID: resourceID,
		Title:      "Table free",
		Body:       label + " is free now!",
	})
	if err != nil {
		log.Printf("Error encoding notification for resource %s: %v", resourceID, err)
		return
	}
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Select("Resources").Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
