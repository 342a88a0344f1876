package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Emit emits an event to the bus and logs it
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	m.EmitForUser(eventType, module, "", data)
}

// EmitForUser emits an event attributed to a user.
func (m *Manager) EmitForUser(eventType EventType, module, userID string, data map[string]interface{}) {
	event := &Event{
		ID:         newEventID(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		UserID:     userID,
		Module:     module,
		Data:       data,
	}

	m.bus.Publish(event)

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")
}

// EmitTyped emits an event with typed data to the bus and logs it
func (m *Manager) EmitTyped(eventType EventType, module, userID string, data EventData) {
	m.EmitForUser(eventType, module, userID, convertEventDataToMap(data))
}

// EmitFailed emits a *Failed event carrying the stable reason code.
func (m *Manager) EmitFailed(eventType EventType, module, userID, reason string, context map[string]interface{}) {
	data := map[string]interface{}{"reason": reason}
	for k, v := range context {
		data[k] = v
	}
	m.EmitForUser(eventType, module, userID, data)
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.EmitForUser(ErrorOccurred, module, "", convertEventDataToMap(&ErrorEventData{
		Error:   err.Error(),
		Context: context,
	}))
}

// convertEventDataToMap converts typed EventData to map[string]interface{}
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}

	return result
}
