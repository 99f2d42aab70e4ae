package processing

import (
	"strings"
	"time"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// TimeLayout is the timestamp format of generated time values.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// TopicLevels splits a topic into its levels, ignoring leading and trailing separators.
func TopicLevels(topic string) []string {
	topic = strings.Trim(topic, "/")
	if topic == "" {
		return nil
	}
	return strings.Split(topic, "/")
}

// AddTopicLevels exposes the topic levels to expressions under _TOPIC_LEVEL_.
func AddTopicLevels(payload *jsonval.Value, topic string) {
	levels := TopicLevels(topic)
	if levels == nil || payload.Kind() != jsonval.KindObject {
		return
	}
	arr := jsonval.Array()
	for _, l := range levels {
		arr.Append(jsonval.String(l))
	}
	payload.Put(mapping.TokenTopicLevel, arr)
}

// AddDefaultTime adds the current time for INBOUND, non inventory mappings that do
// not set a time themselves.
func AddDefaultTime(cache *Cache, m *mapping.Mapping, now time.Time) {
	if m.Direction != mapping.Inbound || m.TargetAPI == mapping.APIInventory || cache.Has(mapping.TimePath) {
		return
	}
	cache.Add(mapping.TimePath, NewSubstituteValue(jsonval.String(now.Format(TimeLayout)), mapping.RepairCreateIfMissing, false))
}

// DetermineProcessingType derives the device/value multiplicity from the cache.
func DetermineProcessingType(m *mapping.Mapping, cache *Cache) ProcessingType {
	if cache.Len() == 0 {
		return ProcessingUndefined
	}
	idKey := mapping.GenericDeviceIdentifier(m)
	multiDevice, multiValue := false, false
	for _, key := range cache.Keys() {
		n, fans := entryLength(cache.Get(key))
		if !fans || n <= 1 {
			continue
		}
		if key == idKey {
			multiDevice = true
		} else if !mapping.IsReservedPath(key) {
			multiValue = true
		}
	}
	switch {
	case multiDevice && multiValue:
		return MultipleDeviceMultipleValue
	case multiDevice:
		return MultipleDeviceOneValue
	case multiValue:
		return OneDeviceMultipleValue
	default:
		return OneDeviceOneValue
	}
}

// ResolvePublishTopic returns the topic an OUTBOUND payload is published to: the
// _TOPIC_LEVEL_ array of the payload when present, else the mapping's publish topic.
func ResolvePublishTopic(m *mapping.Mapping, payload *jsonval.Value) string {
	levels, ok := payload.Get(mapping.TokenTopicLevel)
	if !ok || levels.Kind() != jsonval.KindArray || levels.Len() == 0 {
		return m.PublishTopic
	}
	parts := make([]string, 0, levels.Len())
	for _, l := range levels.Items() {
		parts = append(parts, l.Text())
	}
	return strings.Join(parts, "/")
}

// StripReserved removes the reserved top-level fragments from payload.
func StripReserved(payload *jsonval.Value) {
	for _, tok := range []string{mapping.TokenIdentity, mapping.TokenTopicLevel, mapping.TokenContextData} {
		payload.Remove(tok)
	}
}
