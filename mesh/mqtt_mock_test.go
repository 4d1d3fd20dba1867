package mesh

import (
	"errors"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"probemesh/reports/3", "probemesh/reports/3", true},
		{"probemesh/reports/3", "probemesh/reports/4", false},
		{"probemesh/reports/+", "probemesh/reports/4", true},
		{"probemesh/reports/+", "probemesh/reports/4/raw", false},
		{"probemesh/reports/+", "probemesh/reports", false},
		{"probemesh/+/4", "probemesh/reports/4", true},
		{"probemesh/#", "probemesh/reports/4/raw", true},
		{"#", "anything/at/all", true},
		{"other/#", "probemesh/reports/4", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+" "+tt.topic, func(t *testing.T) {
			if got := topicMatches(tt.filter, tt.topic); got != tt.want {
				t.Errorf("topicMatches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
			}
		})
	}
}

func TestMockClient_Connect(t *testing.T) {
	mock := NewMockClient()
	called := false
	mock.SetOnConnect(func(c mqtt.Client) { called = true })

	token := mock.Connect()
	if token.Error() != nil {
		t.Fatalf("Connect error = %v", token.Error())
	}
	if !mock.IsConnected() || !called {
		t.Errorf("connected=%v onConnect called=%v, want both true", mock.IsConnected(), called)
	}

	mock.Disconnect(0)
	if mock.IsConnected() {
		t.Error("mock should be disconnected")
	}
}

func TestMockClient_ConnectWithError(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnectError(errors.New("refused"))

	if token := mock.Connect(); token.Error() == nil {
		t.Error("Connect should return the configured error")
	}
	if mock.IsConnected() {
		t.Error("mock should stay disconnected")
	}
}

func TestMockClient_SubscribeAndSimulate(t *testing.T) {
	mock := NewMockClient()

	if token := mock.Subscribe("probemesh/reports/+", 0, nil); token.Error() != mqtt.ErrNotConnected {
		t.Errorf("Subscribe before connect error = %v, want ErrNotConnected", token.Error())
	}

	mock.SetConnected(true)
	var got []string
	mock.Subscribe("probemesh/reports/+", 0, func(c mqtt.Client, m mqtt.Message) {
		got = append(got, m.Topic()+"="+string(m.Payload()))
	})

	if !mock.SimulateMessage("probemesh/reports/1", []byte("a")) {
		t.Error("SimulateMessage should report delivery")
	}
	if mock.SimulateMessage("elsewhere/1", []byte("b")) {
		t.Error("SimulateMessage should not deliver to a non-matching topic")
	}
	if len(got) != 1 || got[0] != "probemesh/reports/1=a" {
		t.Errorf("received %v", got)
	}

	mock.Unsubscribe("probemesh/reports/+")
	if len(mock.Subscriptions()) != 0 {
		t.Errorf("Subscriptions after unsubscribe = %v", mock.Subscriptions())
	}
}

func TestMockClient_SubscribeError(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.SetSubscribeError(errors.New("denied"))

	if token := mock.Subscribe("a/b", 0, nil); token.Error() == nil {
		t.Error("Subscribe should return the configured error")
	}
}
