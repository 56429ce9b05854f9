package channel

import "testing"

func TestFormatReplyRoundTrip(t *testing.T) {
	t.Parallel()

	reply := FormatReply(" Your message was placed into the queue ")
	if reply != "$ Your message was placed into the queue" {
		t.Fatalf("FormatReply = %q", reply)
	}
	if !IsEcho(reply) {
		t.Fatal("expected formatted reply to be an echo")
	}
	if IsEcho("hello $") {
		t.Fatal("text with a later marker is not an echo")
	}
}
