package alert

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type mockHTTPClient struct {
	statusCode int
	err        error
	lastReq    *http.Request
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       http.NoBody,
	}, nil
}

func TestNewManager(t *testing.T) {
	m := NewManager(true, "https://hooks.slack.com/test")
	if m == nil {
		t.Fatal("expected non-nil manager")
	}
	if !m.enabled {
		t.Error("expected enabled to be true")
	}
	if m.slackWebhook != "https://hooks.slack.com/test" {
		t.Error("expected slack webhook to be set")
	}
}

func TestSendChainBrokenAlert_Disabled(t *testing.T) {
	m := NewManager(false, "https://hooks.slack.com/test")
	err := m.SendChainBrokenAlert("organization", "dept-1", []string{"hash mismatch at block 1"})
	if err != nil {
		t.Errorf("expected nil error when disabled, got: %v", err)
	}
}

func TestSendChainBrokenAlert_EmptyWebhook(t *testing.T) {
	m := NewManager(true, "")
	err := m.SendChainBrokenAlert("organization", "dept-1", []string{"hash mismatch at block 1"})
	if err != nil {
		t.Errorf("expected nil error with empty webhook, got: %v", err)
	}
}

func TestSendChainBrokenAlert_Success(t *testing.T) {
	mock := &mockHTTPClient{statusCode: http.StatusOK}
	m := NewManagerWithClient(true, "https://hooks.slack.com/test", mock)

	err := m.SendChainBrokenAlert("member", "student-1", []string{"prev_hash does not match"})
	if err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
	if mock.lastReq == nil {
		t.Fatal("expected a request to be sent")
	}

	body, _ := io.ReadAll(mock.lastReq.Body)
	if !strings.Contains(string(body), "student-1") {
		t.Error("expected chain id in payload")
	}
}

func TestSendParentLinkAlert_Success(t *testing.T) {
	mock := &mockHTTPClient{statusCode: http.StatusOK}
	m := NewManagerWithClient(true, "https://hooks.slack.com/test", mock)

	err := m.SendParentLinkAlert("group", "class-1", "dept-1", "genesis prev_hash mismatch")
	if err != nil {
		t.Errorf("expected nil error, got: %v", err)
	}
}

func TestSendSystemAlert_NonOKStatus(t *testing.T) {
	mock := &mockHTTPClient{statusCode: http.StatusInternalServerError}
	m := NewManagerWithClient(true, "https://hooks.slack.com/test", mock)

	err := m.SendSystemAlert("validation failed", "2 chains invalid", "danger")
	if err == nil {
		t.Error("expected error on non-200 status")
	}
}

func TestSendSystemAlert_ClientError(t *testing.T) {
	mock := &mockHTTPClient{err: errors.New("connection refused")}
	m := NewManagerWithClient(true, "https://hooks.slack.com/test", mock)

	err := m.SendSystemAlert("validation failed", "1 chain invalid", "danger")
	if err == nil {
		t.Error("expected error when client fails")
	}
}
