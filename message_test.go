package blario

import "testing"

func countStreaming(msgs []ChatMessage) int {
	n := 0
	for _, m := range msgs {
		if m.ID == StreamingID {
			n++
		}
	}
	return n
}

func TestTranscriptStreamingAlwaysSingleAndLast(t *testing.T) {
	var tr transcript
	tr.append(newMessage(MessageUser, "hi"))

	for _, chunk := range []string{"Hel", "lo, ", "world"} {
		tr.appendChunk(chunk)
		snap := tr.snapshot()
		if got := countStreaming(snap); got != 1 {
			t.Fatalf("streaming records: got %d, want 1", got)
		}
		if snap[len(snap)-1].ID != StreamingID {
			t.Fatal("streaming record must be last")
		}
	}

	snap := tr.snapshot()
	if got := snap[len(snap)-1].Content; got != "Hello, world" {
		t.Errorf("accumulated content: got %q", got)
	}
}

func TestTranscriptFinalizePrefersServerText(t *testing.T) {
	var tr transcript
	tr.appendChunk("Hello, wor")

	m := tr.finalize("Hello, world!")
	if m.Content != "Hello, world!" {
		t.Errorf("final content: got %q, want server text", m.Content)
	}
	if m.ID == StreamingID || m.ID == "" {
		t.Errorf("final message needs a fresh id, got %q", m.ID)
	}
	if m.Type != MessageAgent {
		t.Errorf("type: got %q", m.Type)
	}

	snap := tr.snapshot()
	if got := countStreaming(snap); got != 0 {
		t.Errorf("streaming records after finalize: got %d", got)
	}
	if snap[len(snap)-1].ID != m.ID {
		t.Error("finalized message must be last")
	}

	// A fresh chunk after finalize starts a new streaming record.
	tr.appendChunk("Next ")
	snap = tr.snapshot()
	if snap[len(snap)-1].Content != "Next " {
		t.Errorf("new streaming content: got %q", snap[len(snap)-1].Content)
	}
}

func TestTranscriptPersistableSkipsTransients(t *testing.T) {
	var tr transcript
	tr.append(newMessage(MessageSystem, "Connected"))
	tr.append(newMessage(MessageUser, "hi"))
	tr.appendChunk("partial")

	got := tr.persistable()
	if len(got) != 1 || got[0].Type != MessageUser {
		t.Errorf("persistable: got %+v, want only the user message", got)
	}
}

func TestTranscriptRestoreDropsTransients(t *testing.T) {
	var tr transcript
	tr.restore([]ChatMessage{
		{ID: "1", Type: MessageUser, Content: "hi"},
		{ID: "2", Type: MessageSystem, Content: "Connected"},
		{ID: StreamingID, Type: MessageAgent, Content: "partial"},
		{ID: "3", Type: MessageAgent, Content: "hello"},
	})

	snap := tr.snapshot()
	if len(snap) != 2 {
		t.Fatalf("restored %d messages, want 2", len(snap))
	}
	if snap[0].ID != "1" || snap[1].ID != "3" {
		t.Errorf("restored ids: %q, %q", snap[0].ID, snap[1].ID)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	var tr transcript
	tr.append(newMessage(MessageUser, "hi"))

	snap := tr.snapshot()
	snap[0].Content = "mutated"

	if tr.snapshot()[0].Content != "hi" {
		t.Error("snapshot must not alias internal state")
	}
}
