package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, client *Client) []byte {
	t.Helper()
	select {
	case data := <-client.Queue():
		return data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestHubBroadcastAndUnregister(t *testing.T) {
	hub := NewHub("terminal_output#t1")
	defer hub.Close()

	client1 := NewClient(hub, nil, hub.Topic())
	client2 := NewClient(hub, nil, hub.Topic())
	hub.Add(client1)
	hub.Add(client2)
	assert.Equal(t, 2, hub.Len())

	assert.Equal(t, 2, hub.Broadcast([]byte("hello")))
	assert.Equal(t, "hello", string(receive(t, client1)))
	assert.Equal(t, "hello", string(receive(t, client2)))

	client1.Leave()
	assert.Equal(t, 1, hub.Len())
	assert.True(t, client1.IsClosed())
	assert.False(t, client2.IsClosed())
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := NewHub("terminal_output#t1")
	client := NewClient(hub, nil, hub.Topic())
	hub.Add(client)

	for i := 0; i < queueSize; i++ {
		require.Equal(t, 1, hub.Broadcast([]byte("x")))
	}
	assert.False(t, client.IsClosed())

	assert.Equal(t, 0, hub.Broadcast([]byte("x")))
	assert.True(t, client.IsClosed())
	assert.False(t, client.Send([]byte("late")))

	select {
	case <-client.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestHubManagerPublish(t *testing.T) {
	m := NewHubManager()
	defer m.Close()

	// No listeners: dropped without creating a hub.
	m.Publish("terminal_output#nobody", []byte("lost"))
	assert.Nil(t, m.Get("terminal_output#nobody"))

	client := m.Join("terminal_output#t1", nil)
	other := m.Join("terminal_output#t2", nil)

	m.Publish("terminal_output#t1", []byte("\x1b[1mbold\x1b[0m"))

	var msg Message
	require.NoError(t, json.Unmarshal(receive(t, client), &msg))
	assert.Equal(t, MessageTypeOutput, msg.Type)
	assert.Equal(t, "terminal_output#t1", msg.Topic)
	assert.Equal(t, "\x1b[1mbold\x1b[0m", msg.Data)

	select {
	case <-other.Queue():
		t.Fatal("message leaked to another topic")
	default:
	}
}

func TestHubRemovedWhenLastClientLeaves(t *testing.T) {
	m := NewHubManager()
	defer m.Close()

	client := m.Join("terminal_output#t1", nil)
	require.NotNil(t, m.Get("terminal_output#t1"))

	client.Leave()
	assert.Nil(t, m.Get("terminal_output#t1"))
}

func TestHubManagerClose(t *testing.T) {
	m := NewHubManager()
	c1 := m.Join("a", nil)
	c2 := m.Join("b", nil)

	m.Close()

	assert.True(t, c1.IsClosed())
	assert.True(t, c2.IsClosed())
	assert.Nil(t, m.Get("a"))
	assert.Nil(t, m.Get("b"))
}

func TestPublishDeliversToEveryClientProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("every client on a topic receives the published payload unchanged", prop.ForAll(
		func(clientCount int, payload string) bool {
			m := NewHubManager()
			defer m.Close()

			clients := make([]*Client, clientCount)
			for i := range clients {
				clients[i] = m.Join("terminal_output#p", nil)
			}

			m.Publish("terminal_output#p", []byte(payload))

			for _, c := range clients {
				select {
				case data := <-c.Queue():
					var msg Message
					if err := json.Unmarshal(data, &msg); err != nil {
						return false
					}
					if msg.Type != MessageTypeOutput || msg.Data != payload {
						return false
					}
				case <-time.After(100 * time.Millisecond):
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
