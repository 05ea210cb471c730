package event

import "testing"

// TestClassify は受信ペイロードのイベント種別分類を検証する。
func TestClassify(t *testing.T) {
	t.Parallel()

	t.Run("eventフィールドを持つJSONはその値が種別になること", func(t *testing.T) {
		t.Parallel()

		payload := `{"event":"notification","id":1,"title":"テスト"}`
		env := Classify([]byte(payload))

		if env.Event != TypeNotification {
			t.Errorf("Event = %q, want %q", env.Event, TypeNotification)
		}
		if env.Data != payload {
			t.Errorf("Data = %q, want %q", env.Data, payload)
		}
	})

	t.Run("eventフィールドを持たないJSONはmessageになること", func(t *testing.T) {
		t.Parallel()

		payload := `{"title":"タイトルのみ"}`
		env := Classify([]byte(payload))

		if env.Event != TypeMessage {
			t.Errorf("Event = %q, want %q", env.Event, TypeMessage)
		}
		if env.Data != payload {
			t.Errorf("Data = %q, want %q", env.Data, payload)
		}
	})

	t.Run("JSONとして不正なペイロードは原文のままmessageで配信されること", func(t *testing.T) {
		t.Parallel()

		payload := `this is {not json`
		env := Classify([]byte(payload))

		if env.Event != TypeMessage {
			t.Errorf("Event = %q, want %q", env.Event, TypeMessage)
		}
		if env.Data != payload {
			t.Errorf("Data = %q, want %q", env.Data, payload)
		}
	})

	t.Run("eventフィールドが空文字列の場合はmessageになること", func(t *testing.T) {
		t.Parallel()

		env := Classify([]byte(`{"event":""}`))

		if env.Event != TypeMessage {
			t.Errorf("Event = %q, want %q", env.Event, TypeMessage)
		}
	})

	t.Run("eventフィールドが文字列以外の場合はmessageになること", func(t *testing.T) {
		t.Parallel()

		env := Classify([]byte(`{"event":123}`))

		if env.Event != TypeMessage {
			t.Errorf("Event = %q, want %q", env.Event, TypeMessage)
		}
	})

	t.Run("JSON配列はmessageになること", func(t *testing.T) {
		t.Parallel()

		payload := `[1,2,3]`
		env := Classify([]byte(payload))

		if env.Event != TypeMessage {
			t.Errorf("Event = %q, want %q", env.Event, TypeMessage)
		}
		if env.Data != payload {
			t.Errorf("Data = %q, want %q", env.Data, payload)
		}
	})

	t.Run("独自のイベント種別もそのまま通ること", func(t *testing.T) {
		t.Parallel()

		env := Classify([]byte(`{"event":"heartbeat"}`))

		if env.Event != "heartbeat" {
			t.Errorf("Event = %q, want %q", env.Event, "heartbeat")
		}
	})
}
