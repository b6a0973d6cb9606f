package fabric

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"devv.io/node/internal/controller"
	"devv.io/node/internal/wire"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestMemoryFanOutToAllSubscribers(t *testing.T) {
	mem := NewMemory()
	a := mem.Subscribe("shard-0")
	b := mem.Subscribe("shard-0")
	other := mem.Subscribe("shard-1")

	msg := wire.Message{Type: wire.TransactionAnnouncementMsg, Payload: []byte{1, 2, 3}}
	if err := mem.Publish("shard-0", msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, ch := range []<-chan controller.Inbound{a, b} {
		select {
		case in := <-ch:
			if in.SourceURI != "shard-0" || in.Message.Type != msg.Type {
				t.Fatalf("unexpected delivery: %+v", in)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}

	select {
	case in := <-other:
		t.Fatalf("shard-1 subscriber should not receive a shard-0 publish, got %+v", in)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNodeMergesMultipleTopics(t *testing.T) {
	mem := NewMemory()
	node := NewNode(mem, "shard-0", "shard-1")

	if err := mem.Publish("shard-0", wire.Message{Type: wire.FinalBlockMsg}); err != nil {
		t.Fatalf("Publish shard-0: %v", err)
	}
	if err := mem.Publish("shard-1", wire.Message{Type: wire.ProposalBlockMsg}); err != nil {
		t.Fatalf("Publish shard-1: %v", err)
	}

	seen := map[wire.MessageType]bool{}
	for i := 0; i < 2; i++ {
		select {
		case in := <-node.Inbox():
			seen[in.Message.Type] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for merged delivery")
		}
	}
	if !seen[wire.FinalBlockMsg] || !seen[wire.ProposalBlockMsg] {
		t.Fatalf("expected deliveries from both subscribed topics, got %v", seen)
	}
}

func TestNodePublishFansOutThroughUnderlyingMemory(t *testing.T) {
	mem := NewMemory()
	node := NewNode(mem, "shard-0")
	listener := mem.Subscribe("shard-0")

	if err := node.Publish("shard-0", wire.Message{Type: wire.ValidationMsg}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case in := <-listener:
		if in.Message.Type != wire.ValidationMsg {
			t.Fatalf("Type = %v, want %v", in.Message.Type, wire.ValidationMsg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Node.Publish to reach an independent subscriber")
	}
}

func TestWSFabricDeliversPublishedMessageToServer(t *testing.T) {
	server := NewWSFabric(testLogger())
	httpSrv := httptest.NewServer(server)
	defer httpSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")

	client := NewWSFabric(testLogger())
	msg := wire.Message{Type: wire.TransactionAnnouncementMsg, Payload: []byte("hello")}
	if err := client.Publish(wsURL, msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case in := <-server.Inbox():
		if in.Message.Type != msg.Type || string(in.Message.Payload) != string(msg.Payload) {
			t.Fatalf("delivered message = %+v, want %+v", in.Message, msg)
		}
		if in.SourceURI != wsURL {
			t.Fatalf("SourceURI = %q, want %q", in.SourceURI, wsURL)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the server fabric to receive the published message")
	}
}
