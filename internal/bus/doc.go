// Package bus maps cover operations onto MQTT topics.
//
// Topics are configured as patterns with a single "+" segment standing for
// the cover name, for example "tydom/cover/+/set". Patterns are compiled
// once; matching is anchored and the captured segment is always exactly
// one topic level.
//
// Gateway subscribes the command and position-set patterns, decodes their
// payloads and publishes positions and Home Assistant discovery documents.
package bus
