// Package topic provides topic name handling for MQTT: splitting names
// into segments, filter validation, and a wildcard-aware subscription tree.
package topic

import (
	"fmt"
	"strings"
)

// Split divides a topic name or filter into its slash-separated segments.
// Empty segments are preserved: "/" splits to ["", ""]. The only error is
// an empty input, which is not a legal MQTT topic.
func Split(topic string) ([]string, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic must be at least 1 character long")
	}
	return strings.Split(topic, "/"), nil
}

// Join is the inverse of Split: Join(Split(s)) == s.
func Join(segments []string) string {
	return strings.Join(segments, "/")
}
