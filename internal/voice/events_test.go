package voice

import "testing"

func TestParseEvent_TopLevelAndNested(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"call.started","call":{"id":"c1"}}`))
	if err != nil || ev.Type != EventCallStarted || ev.CallID != "c1" {
		t.Fatalf("unexpected event %+v err=%v", ev, err)
	}

	ev, err = ParseEvent([]byte(`{"message":{"type":"end-of-call-report","endedReason":"customer-ended-call","call":{"id":"c2"}}}`))
	if err != nil || ev.Type != EventCallEnded || ev.CallID != "c2" || ev.EndedReason != "customer-ended-call" {
		t.Fatalf("unexpected event %+v err=%v", ev, err)
	}
}

func TestParseEvent_Aliases(t *testing.T) {
	cases := []struct {
		body string
		want EventType
	}{
		{`{"type":"call-started","call":{"id":"x"}}`, EventCallStarted},
		{`{"type":"call-ended","call":{"id":"x"}}`, EventCallEnded},
		{`{"type":"call.failed","call":{"id":"x"}}`, EventCallFailed},
		{`{"type":"call-failed","call":{"id":"x"}}`, EventCallFailed},
		{`{"message":{"type":"status-update","status":"in-progress","call":{"id":"x"}}}`, EventCallStarted},
		{`{"type":"transcript","call":{"id":"x"}}`, EventIgnored},
	}
	for _, tc := range cases {
		ev, err := ParseEvent([]byte(tc.body))
		if err != nil {
			t.Fatalf("unexpected err for %s: %v", tc.body, err)
		}
		if ev.Type != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.body, tc.want, ev.Type)
		}
	}
}

func TestParseEvent_MissingCallIDIsIgnored(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"call.ended"}`))
	if err != nil || ev.Type != EventIgnored {
		t.Fatalf("expected ignored, got %+v err=%v", ev, err)
	}
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Fatalf("expected malformed error")
	}
}

func TestParseEvent_CarriesAssistantID(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"message":{"type":"status-update","status":"in-progress","call":{"id":"pc-live","assistantId":" asst-c1 "}}}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ev.Type != EventCallStarted || ev.CallID != "pc-live" || ev.AssistantID != "asst-c1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
