// Package service defines the backend-agnostic interface and entity types
// the DoIt client works with.
package service

import (
	"encoding/json"
	"strings"
	"time"
)

// Task statuses. Transitions are enforced by the backend.
const (
	StatusOpen      = "open"
	StatusMatched   = "matched"
	StatusCompleted = "completed"
)

// Application statuses.
const (
	ApplicationPending  = "pending"
	ApplicationAccepted = "accepted"
	ApplicationRejected = "rejected"
)

// Message types.
const (
	MessageText  = "text"
	MessageImage = "image"
)

// Notification types emitted by the backend.
const (
	NotifyNewApplication      = "NEW_APPLICATION"
	NotifyApplicationAccepted = "APPLICATION_ACCEPTED"
	NotifyApplicationRejected = "APPLICATION_REJECTED"
	NotifyNewMessage          = "NEW_MESSAGE"
	NotifyTaskCompleted       = "TASK_COMPLETED"
	NotifyNewReview           = "NEW_REVIEW"
)

// Categories offered when posting a task.
var Categories = []string{"Haushalt", "Garten", "Handwerk", "Transport", "Einkaufen", "Sonstiges"}

// User is the signed-in identity as reported by the identity provider.
type User struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoURL"`
	EmailVerified bool   `json:"emailVerified"`
}

// Task is a posted job.
type Task struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Category      string        `json:"category"`
	Location      string        `json:"location"`
	Latitude      *float64      `json:"latitude,omitempty"`
	Longitude     *float64      `json:"longitude,omitempty"`
	Budget        *float64      `json:"budget,omitempty"`
	Deadline      *Timestamp    `json:"deadline,omitempty"`
	PreferredTime string        `json:"preferred_time,omitempty"`
	TimeFlexible  bool          `json:"time_flexible"`
	Status        string        `json:"status"`
	CreatorUID    string        `json:"creator_uid"`
	TaskerUID     string        `json:"tasker_uid,omitempty"`
	Applications  []Application `json:"applications,omitempty"`
	Images        []string      `json:"images"`
	CreatedAt     Timestamp     `json:"created_at"`
	UpdatedAt     Timestamp     `json:"updated_at"`
	CompletedAt   *Timestamp    `json:"completed_at,omitempty"`
}

// Application is an applicant's offer on a task.
type Application struct {
	ID            string    `json:"id"`
	TaskID        string    `json:"task_id"`
	ApplicantUID  string    `json:"applicant_uid"`
	ApplicantName string    `json:"applicant_name,omitempty"`
	Message       string    `json:"message"`
	OfferedPrice  *float64  `json:"offered_price,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     Timestamp `json:"created_at"`
}

// Chat is a conversation between the two participants of a task.
type Chat struct {
	ID            string    `json:"id"`
	TaskID        string    `json:"task_id"`
	Participants  []string  `json:"participants"`
	LastMessageAt Timestamp `json:"last_message_at"`
}

// UnmarshalJSON accepts both a participants list and the backend's
// user1_id/user2_id pair.
func (c *Chat) UnmarshalJSON(data []byte) error {
	type plain Chat
	var raw struct {
		plain
		User1ID string `json:"user1_id"`
		User2ID string `json:"user2_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Chat(raw.plain)
	if len(c.Participants) == 0 {
		for _, uid := range []string{raw.User1ID, raw.User2ID} {
			if uid != "" {
				c.Participants = append(c.Participants, uid)
			}
		}
	}
	return nil
}

// Message is a single chat entry. Exactly one of Content or ImageURL is set.
type Message struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chat_id"`
	SenderUID   string    `json:"sender_uid"`
	Content     string    `json:"content,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	MessageType string    `json:"message_type"`
	CreatedAt   Timestamp `json:"created_at"`
}

// UnmarshalJSON accepts the backend's sender_id as well as sender_uid.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var raw struct {
		plain
		SenderID string `json:"sender_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message(raw.plain)
	if m.SenderUID == "" {
		m.SenderUID = raw.SenderID
	}
	return nil
}

// Notification is a backend-generated event for the signed-in user.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt Timestamp `json:"created_at"`
}

// Profile is a user's public profile.
type Profile struct {
	UID            string  `json:"uid"`
	DisplayName    string  `json:"display_name"`
	Bio            string  `json:"bio"`
	Location       string  `json:"location"`
	AvatarURL      string  `json:"avatar_url"`
	CompletedTasks int     `json:"completed_tasks"`
	PostedTasks    int     `json:"posted_tasks"`
	Rating         float64 `json:"rating"`
}

// Review is a rating left after a completed task.
type Review struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	ReviewerID string    `json:"reviewer_id"`
	ReviewedID string    `json:"reviewed_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  Timestamp `json:"created_at"`
}

// ReviewStats aggregates a user's reviews.
type ReviewStats struct {
	AverageRating float64 `json:"average_rating"`
	TotalReviews  int     `json:"total_reviews"`
}

// RegisterInput registers a freshly created identity with the backend.
type RegisterInput struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// TaskInput is the body of a task creation.
type TaskInput struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Category      string     `json:"category"`
	Location      string     `json:"location"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	Budget        *float64   `json:"budget,omitempty"`
	Deadline      *Timestamp `json:"deadline,omitempty"`
	PreferredTime string     `json:"preferred_time,omitempty"`
	TimeFlexible  bool       `json:"time_flexible"`
	Images        []string   `json:"images"`
	CreatorUID    string     `json:"creator_uid"`
}

// TaskUpdate is a partial task update; nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Location    *string  `json:"location,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Budget      *float64 `json:"budget,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// TaskQuery narrows the server-side task listing.
type TaskQuery struct {
	Category string
	Status   string
	Skip     int
	Limit    int
}

// ApplicationInput is the body of an application.
type ApplicationInput struct {
	TaskID       string   `json:"task_id"`
	ApplicantUID string   `json:"applicant_uid"`
	Message      string   `json:"message"`
	OfferedPrice *float64 `json:"offered_price,omitempty"`
}

// MessageInput is the body of a sent chat message.
type MessageInput struct {
	ChatID      string `json:"chat_id"`
	SenderUID   string `json:"sender_uid"`
	Content     string `json:"content,omitempty"`
	MessageType string `json:"message_type"`
	ImageURL    string `json:"image_url,omitempty"`
}

// ReviewInput is the body of a review.
type ReviewInput struct {
	TaskID     string `json:"task_id"`
	ReviewedID string `json:"reviewed_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
}

// ProfileUpdate is a partial profile update.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	Location    *string `json:"location,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// Timestamp decodes the backend's ISO-8601 times, with or without a zone.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}
