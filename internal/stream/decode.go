package stream

import (
	"encoding/json"
	"fmt"

	"jajanin-relay/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DecodeAlert decodes and validates the data of an alert event. A payload that fails
// either step must be dropped.
func DecodeAlert(data []byte) (models.AlertEvent, error) {
	var alert models.AlertEvent
	if err := json.Unmarshal(data, &alert); err != nil {
		return models.AlertEvent{}, fmt.Errorf("malformed alert payload: %w", err)
	}
	if err := validate.Struct(alert); err != nil {
		return models.AlertEvent{}, fmt.Errorf("invalid alert payload: %w", err)
	}
	return alert, nil
}
