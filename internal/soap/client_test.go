package soap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PlaySendsSOAPAction(t *testing.T) {
	var gotAction, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.Header.Get("SOAPACTION")
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(time.Second)
	err := client.Play(context.Background(), server.URL+"/control")

	require.NoError(t, err)
	assert.Contains(t, gotAction, ServiceTypeAVTransport+"#Play")
	assert.Contains(t, gotBody, "<u:Play")
}

func TestClient_RejectedFaultIsParsed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<s:Envelope><s:Body><s:Fault><detail><UPnPError><errorCode>718</errorCode><errorDescription>Invalid InstanceID</errorDescription></UPnPError></detail></s:Fault></s:Body></s:Envelope>`))
	}))
	defer server.Close()

	client := NewClient(time.Second)
	err := client.Stop(context.Background(), server.URL+"/control")

	require.Error(t, err)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "718", rejected.Code)
}

func TestClient_GetTransportInfoParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<s:Envelope><s:Body><u:GetTransportInfoResponse><CurrentTransportState>PLAYING</CurrentTransportState><CurrentTransportStatus>OK</CurrentTransportStatus><CurrentSpeed>1</CurrentSpeed></u:GetTransportInfoResponse></s:Body></s:Envelope>`))
	}))
	defer server.Close()

	client := NewClient(time.Second)
	info, err := client.GetTransportInfo(context.Background(), server.URL+"/control")

	require.NoError(t, err)
	assert.Equal(t, "PLAYING", info.CurrentTransportState)
	assert.Equal(t, "OK", info.CurrentTransportStatus)
}

func TestSubscriptionClient_SubscribeReturnsSID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SUBSCRIBE", r.Method)
		assert.Equal(t, "<http://callback/>", r.Header.Get("CALLBACK"))
		w.Header().Set("SID", "uuid:sub-1")
		w.Header().Set("TIMEOUT", "Second-1800")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewSubscriptionClient(time.Second)
	sid, timeout, err := client.Subscribe(context.Background(), server.URL+"/event", "http://callback/", 1800)

	require.NoError(t, err)
	assert.Equal(t, "uuid:sub-1", sid)
	assert.Equal(t, 1800, timeout)
}

func TestSubscriptionClient_RenewNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	}))
	defer server.Close()

	client := NewSubscriptionClient(time.Second)
	_, err := client.Renew(context.Background(), server.URL+"/event", "uuid:sub-1", 1800)

	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}
