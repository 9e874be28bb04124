package services

import (
	"encoding/json"
	"log"

	"prediction-chain/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// appendEvent records a domain event row inside the caller's transaction so the
// event journal always matches the committed state. Payload marshalling errors
// are logged, not fatal: the event row is audit data, the state change is not.
func appendEvent(tx *gorm.DB, eventType models.EventType, marketID, userID *uint, amount *decimal.Decimal, detail interface{}) error {
	event := models.LedgerEvent{
		Type:     eventType,
		MarketID: marketID,
		UserID:   userID,
		Amount:   amount,
	}

	if detail != nil {
		payload, err := json.Marshal(detail)
		if err != nil {
			log.Printf("[Events] failed to marshal payload for %s: %v", eventType, err)
		} else {
			event.Payload = string(payload)
		}
	}

	return tx.Create(&event).Error
}

// EventService serves the UI's event polling endpoint
type EventService struct {
	db *gorm.DB
}

// NewEventService creates a new event service
func NewEventService(db *gorm.DB) *EventService {
	return &EventService{db: db}
}

// After returns up to limit events with an id greater than afterID, oldest first
func (s *EventService) After(afterID uint, limit int) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := s.db.
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
