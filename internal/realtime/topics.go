package realtime

import "strings"

// Topic layout, parameterized by session id. Broadcast topics fan out to
// every subscriber; the code inbox is the app-bound destination the server
// republishes from, mirroring a client-to-server-to-fanout pattern.
func SessionTopic(id string) string      { return "session/" + id }
func TimerTopic(id string) string        { return "session/" + id + "/timer" }
func ChatTopic(id string) string         { return "session/" + id + "/chat" }
func NotesTopic(id string) string        { return "session/" + id + "/notes" }
func PrivateNotesTopic(id string) string { return "session/" + id + "/notes/private" }
func EvaluationTopic(id string) string   { return "session/" + id + "/evaluation" }
func CodeInboxTopic(id string) string    { return "app/session/" + id + "/code" }

// TopicKind collapses a concrete topic to its pattern for metric labels.
func TopicKind(topic string) string {
	switch {
	case strings.HasPrefix(topic, "app/"):
		return "code_inbox"
	case strings.HasSuffix(topic, "/timer"):
		return "timer"
	case strings.HasSuffix(topic, "/chat"):
		return "chat"
	case strings.HasSuffix(topic, "/notes/private"):
		return "notes_private"
	case strings.HasSuffix(topic, "/notes"):
		return "notes"
	case strings.HasSuffix(topic, "/evaluation"):
		return "evaluation"
	default:
		return "code"
	}
}
