package event

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nao1215/taskhub/pkg/httpclient"
)

// recordingPublisher は受け取ったイベントを記録するPublisher。
type recordingPublisher struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

// fakeToken は即座に完了するmqtt.Token。
type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, completed bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if completed {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

// publishedMessage はfakeMQTTClientに送られたメッセージ。
type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeMQTTClient はPublishを記録するmqtt.Client。
// 使用しないメソッドは埋め込んだインターフェースに委ねる（呼ぶとpanicする）。
type fakeMQTTClient struct {
	mqtt.Client
	mu           sync.Mutex
	messages     []publishedMessage
	token        *fakeToken
	disconnected bool
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, _ := payload.([]byte)
	c.messages = append(c.messages, publishedMessage{topic: topic, qos: qos, retained: retained, payload: b})
	return c.token
}

func (c *fakeMQTTClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

// discardLogger は出力を捨てるロガーを返す。
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestMulti はMultiの配信を検証する。
func TestMulti(t *testing.T) {
	t.Parallel()

	t.Run("全てのPublisherに配信されること", func(t *testing.T) {
		t.Parallel()

		a, b := &recordingPublisher{}, &recordingPublisher{}
		e, _ := New("task-1", AggregateTypeTask, TypeTaskDeleted, "user-1", TaskDeletedData{})

		if err := (Multi{a, Nop{}, b}).Publish(t.Context(), e); err != nil {
			t.Fatalf("Publish()でエラーが発生: %v", err)
		}
		if len(a.events) != 1 || len(b.events) != 1 {
			t.Errorf("配信数 = (%d, %d), want (1, 1)", len(a.events), len(b.events))
		}
	})

	t.Run("一部が失敗しても残りに配信されエラーがまとめて返ること", func(t *testing.T) {
		t.Parallel()

		errBroken := errors.New("broken")
		failing := &recordingPublisher{err: errBroken}
		ok := &recordingPublisher{}
		e, _ := New("task-1", AggregateTypeTask, TypeTaskDeleted, "user-1", TaskDeletedData{})

		err := (Multi{failing, ok}).Publish(t.Context(), e)
		if !errors.Is(err, errBroken) {
			t.Errorf("err = %v, want %v", err, errBroken)
		}
		if len(ok.events) != 1 {
			t.Errorf("配信数 = %d, want 1", len(ok.events))
		}
	})
}

// TestEmit はEmitを検証する。
func TestEmit(t *testing.T) {
	t.Parallel()

	t.Run("イベントが生成されて配信されること", func(t *testing.T) {
		t.Parallel()

		rec := &recordingPublisher{}
		Emit(t.Context(), rec, discardLogger(), "task-1", AggregateTypeTask, TypeTaskCreated, "user-1", TaskCreatedData{Title: "a"})

		if len(rec.events) != 1 {
			t.Fatalf("配信数 = %d, want 1", len(rec.events))
		}
		if rec.events[0].EventType != TypeTaskCreated || rec.events[0].ActorID != "user-1" {
			t.Errorf("event = %+v", rec.events[0])
		}
	})

	t.Run("配信の失敗はログに記録されるだけであること", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		rec := &recordingPublisher{err: errors.New("unreachable")}

		Emit(t.Context(), rec, logger, "task-1", AggregateTypeTask, TypeTaskCreated, "user-1", TaskCreatedData{})

		if !strings.Contains(buf.String(), "failed to publish event") {
			t.Errorf("ログが出力されていない: %s", buf.String())
		}
	})

	t.Run("Publisherがnilでもpanicしないこと", func(t *testing.T) {
		t.Parallel()

		Emit(t.Context(), nil, discardLogger(), "task-1", AggregateTypeTask, TypeTaskCreated, "user-1", nil)
	})
}

// TestParseMQTTURL はMQTT_URLの解析を検証する。
func TestParseMQTTURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    MQTTTarget
		wantErr bool
	}{
		{
			name: "パスがトピックになること",
			raw:  "tcp://broker:1883/taskhub/events",
			want: MQTTTarget{Broker: "tcp://broker:1883", Topic: "taskhub/events"},
		},
		{
			name: "パスが空の場合はデフォルトのトピックになること",
			raw:  "tcp://broker:1883",
			want: MQTTTarget{Broker: "tcp://broker:1883", Topic: "taskhub/events"},
		},
		{
			name: "ユーザー情報が取り出されること",
			raw:  "ssl://bot:pw@broker:8883/t",
			want: MQTTTarget{Broker: "ssl://broker:8883", Topic: "t", Username: "bot", Password: "pw"},
		},
		{name: "未対応のスキームはエラーになること", raw: "http://broker/t", wantErr: true},
		{name: "ホストが無い場合はエラーになること", raw: "tcp:///t", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseMQTTURL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMQTTURL(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseMQTTURL(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

// TestMQTTPublisher はMQTTPublisherを検証する。
func TestMQTTPublisher(t *testing.T) {
	t.Parallel()

	t.Run("イベント種別ごとのトピックにJSONが送信されること", func(t *testing.T) {
		t.Parallel()

		client := &fakeMQTTClient{token: newFakeToken(nil, true)}
		p := NewMQTTPublisher(client, "taskhub/events/")
		e, _ := New("task-1", AggregateTypeTask, TypeTaskUpdated, "user-1", TaskUpdatedData{Title: "x"})

		if err := p.Publish(t.Context(), e); err != nil {
			t.Fatalf("Publish()でエラーが発生: %v", err)
		}
		if len(client.messages) != 1 {
			t.Fatalf("送信数 = %d, want 1", len(client.messages))
		}
		msg := client.messages[0]
		if msg.topic != "taskhub/events/task/TaskUpdated" {
			t.Errorf("topic = %q, want %q", msg.topic, "taskhub/events/task/TaskUpdated")
		}
		if msg.qos != 1 || msg.retained {
			t.Errorf("qos = %d, retained = %v", msg.qos, msg.retained)
		}
		var got Event
		if err := json.Unmarshal(msg.payload, &got); err != nil {
			t.Fatalf("ペイロードのパースに失敗: %v", err)
		}
		if got.ID != e.ID || got.EventType != TypeTaskUpdated {
			t.Errorf("payload = %+v", got)
		}
	})

	t.Run("トークンのエラーが返ること", func(t *testing.T) {
		t.Parallel()

		errNotConnected := errors.New("not connected")
		client := &fakeMQTTClient{token: newFakeToken(errNotConnected, true)}
		e, _ := New("u", AggregateTypeUser, TypeUserRegistered, "u", UserRegisteredData{})

		if err := NewMQTTPublisher(client, "").Publish(t.Context(), e); !errors.Is(err, errNotConnected) {
			t.Errorf("err = %v, want %v", err, errNotConnected)
		}
	})

	t.Run("送達確認が来ない場合はctxの終了で戻ること", func(t *testing.T) {
		t.Parallel()

		client := &fakeMQTTClient{token: newFakeToken(nil, false)}
		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		e, _ := New("u", AggregateTypeUser, TypeUserRegistered, "u", UserRegisteredData{})

		if err := NewMQTTPublisher(client, "").Publish(ctx, e); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want %v", err, context.DeadlineExceeded)
		}
	})

	t.Run("Closeで切断されること", func(t *testing.T) {
		t.Parallel()

		client := &fakeMQTTClient{token: newFakeToken(nil, true)}
		NewMQTTPublisher(client, "").Close()
		if !client.disconnected {
			t.Error("Disconnectが呼ばれていない")
		}
	})
}

// TestWebhookPublisher はWebhookPublisherを検証する。
func TestWebhookPublisher(t *testing.T) {
	t.Parallel()

	t.Run("イベントがJSONでPOSTされること", func(t *testing.T) {
		t.Parallel()

		var gotHeader string
		var got Event
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeader = r.Header.Get("X-Taskhub-Event")
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusAccepted)
		}))
		defer ts.Close()

		e, _ := New("task-9", AggregateTypeTask, TypeTaskCreated, "user-9", TaskCreatedData{Title: "w"})
		if err := NewWebhookPublisher(ts.URL).Publish(t.Context(), e); err != nil {
			t.Fatalf("Publish()でエラーが発生: %v", err)
		}
		if gotHeader != "TaskCreated" {
			t.Errorf("X-Taskhub-Event = %q, want %q", gotHeader, "TaskCreated")
		}
		if got.ID != e.ID || got.AggregateID != "task-9" {
			t.Errorf("受信したイベント = %+v", got)
		}
	})

	t.Run("エンドポイントがエラーを返した場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()

		e, _ := New("task-9", AggregateTypeTask, TypeTaskDeleted, "user-9", TaskDeletedData{})
		err := NewWebhookPublisher(ts.URL, httpclient.WithTimeout(time.Second)).Publish(t.Context(), e)
		var se *httpclient.StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
			t.Errorf("err = %v, want StatusError 502", err)
		}
	})
}
