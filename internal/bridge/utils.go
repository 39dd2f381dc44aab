package bridge

import (
	"strings"
)

// ToNATSSubject converts an MQTT topic to NATS subject format.
// MQTT uses / as separator and +/# as wildcards; NATS uses . and */>.
// NATS forbids empty tokens, so empty MQTT segments become "_".
func ToNATSSubject(mqttTopic string) string {
	segments := strings.Split(mqttTopic, "/")
	for i, segment := range segments {
		switch segment {
		case "":
			segments[i] = "_"
		case "+":
			segments[i] = "*"
		case "#":
			segments[i] = ">"
		}
	}
	return strings.Join(segments, ".")
}

// ToMQTTTopic is the reverse of ToNATSSubject, minus the empty-segment
// normalization, which is not invertible.
func ToMQTTTopic(natsSubject string) string {
	segments := strings.Split(natsSubject, ".")
	for i, segment := range segments {
		switch segment {
		case "*":
			segments[i] = "+"
		case ">":
			segments[i] = "#"
		}
	}
	return strings.Join(segments, "/")
}
