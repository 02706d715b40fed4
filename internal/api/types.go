package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mixelka/inboxrelay/pkg/models"
)

// ChatID accepts a JSON number or a numeric string
type ChatID int64

func (c *ChatID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*c = 0
			return nil
		}
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat_id %q", raw)
	}
	*c = ChatID(id)
	return nil
}

type registerRequest struct {
	ChatID   ChatID `json:"chat_id"`
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

type chatRequest struct {
	ChatID ChatID `json:"chat_id"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type statusResponse struct {
	Monitoring   bool    `json:"monitoring"`
	Email        *string `json:"email"`
	MessageCount int     `json:"message_count"`
}

type activeUser struct {
	ChatID     int64  `json:"chat_id"`
	Email      string `json:"email"`
	Monitoring bool   `json:"monitoring"`
}

type activeUsersResponse struct {
	Users []activeUser `json:"users"`
	Count int          `json:"count"`
}

type healthResponse struct {
	Status      string  `json:"status"`
	ActiveUsers int     `json:"active_users"`
	Uptime      float64 `json:"uptime"`
}

type deliveriesResponse struct {
	Deliveries []*models.Delivery `json:"deliveries"`
	Count      int                `json:"count"`
}
