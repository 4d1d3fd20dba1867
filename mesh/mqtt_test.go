package mesh

import (
	"sync"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// reportRecorder is a testify mock standing in for a ReportHandler.
type reportRecorder struct {
	mock.Mock
}

func (r *reportRecorder) handle(topic string, scanner Scanner, err error) {
	r.Called(topic, scanner, err)
}

func reportConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ReportTopic: "probemesh/reports/+",
		},
	}
}

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	client, err := InitMQTT(&Config{Input: "scanners.txt"}, nil)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_NoConfig(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")

	_, err := InitMQTT(nil, nil)
	assert.Error(t, err)
}

func TestMQTTClient_IsConnected(t *testing.T) {
	client := &MQTTClient{}
	assert.False(t, client.IsConnected(), "New client should not be connected")

	client.setConnected(true)
	assert.True(t, client.IsConnected(), "Client should be connected after setConnected(true)")

	client.setConnected(false)
	assert.False(t, client.IsConnected())
}

func TestMQTTClient_ConcurrentAccess(t *testing.T) {
	client := &MQTTClient{}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.setConnected(i%2 == 0)
			_ = client.IsConnected()
		}()
	}
	wg.Wait()
}

func TestMQTTClient_WithMock_OnConnect(t *testing.T) {
	mockClient := NewMockClient()
	client := newMQTTClientWithMock(mockClient, reportConfig(), nil)
	mockClient.SetOnConnect(client.onConnect)

	token := mockClient.Connect()
	require.NoError(t, token.Error())

	assert.True(t, client.IsConnected())
	assert.Equal(t, []string{"probemesh/reports/+"}, mockClient.Subscriptions())
	assert.Same(t, mockClient, client.GetClient())
}

func TestMQTTClient_WithMock_NoReportTopic(t *testing.T) {
	mockClient := NewMockClient()
	client := newMQTTClientWithMock(mockClient, &Config{Input: "scanners.txt"}, nil)
	mockClient.SetOnConnect(client.onConnect)

	mockClient.Connect()
	assert.True(t, client.IsConnected())
	assert.Empty(t, mockClient.Subscriptions())
}

func TestMQTTClient_WithMock_ReportHandling(t *testing.T) {
	recorder := &reportRecorder{}
	want := Scanner{ID: 3, Probes: []Point3{{1, 2, 3}}}
	recorder.On("handle", "probemesh/reports/3", want, nil).Once()
	recorder.On("handle", "probemesh/reports/4", Scanner{}, mock.AnythingOfType("*errors.errorString")).Once()

	mockClient := NewMockClient()
	client := newMQTTClientWithMock(mockClient, reportConfig(), recorder.handle)
	mockClient.SetOnConnect(client.onConnect)
	mockClient.Connect()

	assert.True(t, mockClient.SimulateMessage("probemesh/reports/3", []byte(`{"id":3,"probes":[[1,2,3]]}`)))
	assert.True(t, mockClient.SimulateMessage("probemesh/reports/4", []byte("not a report")))
	assert.False(t, mockClient.SimulateMessage("other/topic", []byte(`{"id":5}`)))

	recorder.AssertExpectations(t)
}

func TestMQTTClient_WithMock_TextReport(t *testing.T) {
	var got Scanner
	handler := func(topic string, s Scanner, err error) {
		require.NoError(t, err)
		got = s
	}

	mockClient := NewMockClient()
	client := newMQTTClientWithMock(mockClient, reportConfig(), handler)
	mockClient.SetOnConnect(client.onConnect)
	mockClient.Connect()

	mockClient.SimulateMessage("probemesh/reports/1", []byte("--- scanner 1 ---\n4,5,6\n"))
	assert.Equal(t, Scanner{ID: 1, Probes: []Point3{{4, 5, 6}}}, got)
}

func TestMQTTClient_WithMock_NilHandler(t *testing.T) {
	mockClient := NewMockClient()
	client := newMQTTClientWithMock(mockClient, reportConfig(), nil)
	mockClient.SetOnConnect(client.onConnect)
	mockClient.Connect()

	// Must not panic
	mockClient.SimulateMessage("probemesh/reports/1", []byte(`{"id":1}`))
	mockClient.SimulateMessage("probemesh/reports/1", []byte(`garbage`))
}

func TestMQTTClient_WithMock_SubscribeError(t *testing.T) {
	mockClient := NewMockClient()
	mockClient.SetSubscribeError(assert.AnError)
	client := newMQTTClientWithMock(mockClient, reportConfig(), nil)
	mockClient.SetOnConnect(client.onConnect)

	mockClient.Connect()
	assert.True(t, client.IsConnected(), "a failed subscribe does not drop the connection")
	assert.Empty(t, mockClient.Subscriptions())
}

func TestMQTTDisconnect(t *testing.T) {
	mockClient := NewMockClient()
	client := newMQTTClientWithMock(mockClient, reportConfig(), nil)
	mockClient.SetOnConnect(client.onConnect)
	mockClient.Connect()

	client.Disconnect()
	assert.False(t, client.IsConnected())
	assert.False(t, mockClient.IsConnected())

	// Disconnecting twice is a no-op
	client.Disconnect()
}

func TestMQTTClient_OnConnectionLost(t *testing.T) {
	client := &MQTTClient{}
	client.setConnected(true)

	client.onConnectionLost(nil, assert.AnError)
	assert.False(t, client.IsConnected())

	client.onReconnecting(nil, &mqtt.ClientOptions{})
}
