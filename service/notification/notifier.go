package notification

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/dphilippe/vitality-server/cmd/models"
	"github.com/dphilippe/vitality-server/service/metrics"
	"github.com/dphilippe/vitality-server/service/ws"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// PractitionerNotifier delivers appointment notifications to the
// practitioner side: live over the websocket hub, by email as a fallback
// channel, with a periodic sweep re-sending rows that never reached a
// connected client. The notification row itself is written by the state
// machine; delivery here is at-least-once.
type PractitionerNotifier struct {
	db  *gorm.DB
	hub *ws.Hub
}

func NewPractitionerNotifier(db *gorm.DB, hub *ws.Hub) *PractitionerNotifier {
	return &PractitionerNotifier{db: db, hub: hub}
}

// NotifyPractitioner pushes a freshly created notification out. Safe to call
// from inside the transaction that created the row: a failed delivery is
// retried by the sweep.
func (n *PractitionerNotifier) NotifyPractitioner(notification *models.Notification) {
	delivered := n.hub.BroadcastNotification(notification)
	if delivered > 0 {
		metrics.NotificationsDelivered.WithLabelValues("websocket").Inc()
		n.markDelivered(notification.UUID)
	}

	go n.sendBookingAlertEmail(notification)
}

func (n *PractitionerNotifier) markDelivered(uuid string) {
	now := time.Now()
	if err := n.db.Model(&models.Notification{}).Where("uuid = ?", uuid).Update("delivered_at", now).Error; err != nil {
		log.Printf("Error marking notification %s delivered: %v", uuid, err)
	}
}

// sendBookingAlertEmail mails the practitioner about a submitted booking.
// Skipped when SMTP is not configured; failures are logged, never fatal.
func (n *PractitionerNotifier) sendBookingAlertEmail(notification *models.Notification) {
	smtpHost := os.Getenv("SMTP_HOST")
	if smtpHost == "" {
		return
	}
	smtpUser := os.Getenv("SMTP_USER")
	practitionerEmail := os.Getenv("PRACTITIONER_EMAIL")
	if practitionerEmail == "" {
		practitionerEmail = smtpUser
	}

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", practitionerEmail)
	m.SetHeader("Subject", "Booking submitted")
	m.SetBody("text/plain", fmt.Sprintf("Patient %s has paid the first-visit fee and is awaiting your confirmation.", notification.FileID))

	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		log.Printf("Invalid SMTP port: %v", err)
		return
	}
	d := gomail.NewDialer(smtpHost, port, smtpUser, os.Getenv("SMTP_PASS"))

	if err := d.DialAndSend(m); err != nil {
		log.Printf("Error sending booking alert email: %v", err)
		return
	}
	metrics.NotificationsDelivered.WithLabelValues("email").Inc()
}

// RunRedeliverySweep periodically re-broadcasts notifications that have not
// reached any practitioner client yet. Returns when ctx is cancelled.
func (n *PractitionerNotifier) RunRedeliverySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if n.hub.ClientCount() == 0 {
			continue
		}

		var pending []models.Notification
		if err := n.db.Where("delivered_at IS NULL").Order("created_at").Find(&pending).Error; err != nil {
			log.Printf("Redelivery sweep query failed: %v", err)
			continue
		}
		for i := range pending {
			if n.hub.BroadcastNotification(&pending[i]) > 0 {
				metrics.NotificationsDelivered.WithLabelValues("websocket").Inc()
				n.markDelivered(pending[i].UUID)
			}
		}
	}
}
