package session

import (
	"mentor-voice/messages"
	"mentor-voice/upstream"
)

// demuxEvent fans a multi-facet upstream event out into one client frame per
// facet. An event may carry any combination of text, audio, transcripts and a
// turn boundary; each present facet becomes its own typed frame, emitted in a
// fixed order with the turn boundary last.
func demuxEvent(ev *upstream.Event, sessionID string) []*messages.ServerMessage {
	var out []*messages.ServerMessage
	if ev.Text != "" {
		out = append(out, messages.NewAIText(sessionID, ev.Text))
	}
	if len(ev.Audio) > 0 {
		out = append(out, messages.NewAIAudio(sessionID, ev.Audio))
	}
	if ev.InputTranscript != "" {
		out = append(out, messages.NewInputTranscript(sessionID, ev.InputTranscript))
	}
	if ev.OutputTranscript != "" {
		out = append(out, messages.NewOutputTranscript(sessionID, ev.OutputTranscript))
	}
	if ev.TurnComplete {
		out = append(out, messages.NewTurnComplete(sessionID))
	}
	return out
}
