package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSMSClient struct {
	phone    string
	template string
	params   map[string]string
	err      error
}

func (f *fakeSMSClient) Send(ctx context.Context, phone, sign, template string, params map[string]string) error {
	f.phone, f.template, f.params = phone, template, params
	return f.err
}

func TestSMSNotifier(t *testing.T) {
	cli := &fakeSMSClient{}
	n := NewSMSNotifier(SMSConfig{SignName: "RescueHub", TemplateCode: "SMS_001"}, cli)

	require.NoError(t, n.NotifyAssignment(context.Background(), "+86-100", "case #1: trapped"))
	assert.Equal(t, "+86-100", cli.phone)
	assert.Equal(t, "SMS_001", cli.template)
	assert.Equal(t, "case #1: trapped", cli.params["case"])
}

func TestSMSNotifierWithoutClient(t *testing.T) {
	n := NewSMSNotifier(SMSConfig{}, nil)
	assert.Error(t, n.NotifyAssignment(context.Background(), "+86-100", "x"))
}

func TestNoopNotifier(t *testing.T) {
	assert.NoError(t, NoopNotifier{}.NotifyAssignment(context.Background(), "", ""))
}

func TestHTTPSMSClient(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cli := NewHTTPSMSClient(srv.URL)
	err := cli.Send(context.Background(), "+86-100", "RescueHub", "SMS_001",
		map[string]string{"case": "case #1: trapped"})
	require.NoError(t, err)
	assert.Equal(t, "+86-100", got["phone"])
	assert.Equal(t, "SMS_001", got["template"])
}

func TestHTTPSMSClientGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPSMSClient(srv.URL).Send(context.Background(), "+86-100", "", "", nil)
	assert.Error(t, err)
}
