package model

import "encoding/json"

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"isPrivate"`
	CreatedBy string `json:"createdBy,omitempty"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

// Message is an immutable chat message. The backend is not consistent about
// field naming across its REST and socket paths, so decoding accepts the
// known aliases for sender, content and timestamp.
type Message struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string `json:"id"`
		SenderID   string `json:"senderId"`
		SenderSnek string `json:"sender_id"`
		From       string `json:"from"`
		UserID     string `json:"userId"`
		Content    string `json:"content"`
		Body       string `json:"body"`
		Text       string `json:"text"`
		CreatedAt  int64  `json:"createdAt"`
		Created    int64  `json:"created_at"`
		Timestamp  int64  `json:"timestamp"`
		TS         int64  `json:"ts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.ID = raw.ID
	m.SenderID = firstNonEmpty(raw.SenderID, raw.SenderSnek, raw.From, raw.UserID)
	m.Content = firstNonEmpty(raw.Content, raw.Body, raw.Text)
	m.CreatedAt = firstNonZero(raw.CreatedAt, raw.Created, raw.Timestamp, raw.TS)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
