package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{
		ClaimID:            7,
		Outcome:            "completed",
		ClaimedAmount:      decimal.NewFromInt(10),
		DistributionAmount: decimal.NewFromInt(3),
		EligibleHolders:    1,
		TotalHolders:       2,
		TransactionID:      "tx-1",
		Timestamp:          time.Now(),
	}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "Claim #7") {
		t.Fatalf("text 应包含 claim id: %q", received["text"])
	}
	if !strings.Contains(received["text"], "1 eligible of 2") {
		t.Fatalf("text 应包含持有者统计: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{ClaimID: 1, Outcome: "failed", Timestamp: time.Now()}

	if err := notifier.Notify(context.Background(), note); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestRenderMessageIncludesError(t *testing.T) {
	note := Notification{
		ClaimID:      3,
		Outcome:      "failed",
		ErrorMessage: "no eligible holders for distribution",
		Timestamp:    time.Now(),
	}
	text := renderMessage(note)
	if !strings.Contains(text, "no eligible holders") {
		t.Fatalf("失败消息应包含错误说明: %q", text)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
