// internal/workers/underwriting/send-decision-notification/models.go
package senddecisionnotification

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"`
	EmailSent      bool   `json:"emailSent"`
	EventPublished bool   `json:"eventPublished"`
	SentAt         string `json:"sentAt"` // ISO 8601
}
