package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	userdomain "pickup-portal/client/internal/user/domain"
)

type staticTokens string

func (s staticTokens) AccessToken() string { return string(s) }

func newTestServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL+"/", WithHTTPClient(srv.Client()))
}

func TestSendOTP_Success(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.URL.Path != PathLogin {
			t.Errorf("path = %q, want %q", r.URL.Path, PathLogin)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("login must not carry a bearer token, got %q", r.Header.Get("Authorization"))
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Decode body: %v", err)
		}
		if body["mobileNumber"] != "9876543210" {
			t.Errorf("mobileNumber = %q, want 9876543210", body["mobileNumber"])
		}
		w.Write([]byte(`{"status":true,"data":[{"status":"VERIFIED"}]}`))
	})

	res, err := client.SendOTP(context.Background(), "9876543210")
	if err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if res.Status != userdomain.StatusVerified {
		t.Errorf("Status = %v, want VERIFIED", res.Status)
	}
}

func TestSendOTP_EmptyData(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":[]}`))
	})
	res, err := client.SendOTP(context.Background(), "9876543210")
	if err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if res.Status != userdomain.StatusUnset {
		t.Errorf("Status = %v, want unset", res.Status)
	}
}

func TestVerifyOTP_Success(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["otp"] != "123456" || body["mobileNumber"] != "9876543210" {
			t.Errorf("body = %v", body)
		}
		w.Write([]byte(`{"status":200,"data":[{"accessToken":"abc","refreshToken":"r1","status":"STEP1","name":"Asha"}]}`))
	})

	res, err := client.VerifyOTP(context.Background(), "9876543210", "123456")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if res.AccessToken != "abc" || res.RefreshToken != "r1" {
		t.Errorf("tokens = %q/%q, want abc/r1", res.AccessToken, res.RefreshToken)
	}
	if res.Status != userdomain.StatusStep1 {
		t.Errorf("Status = %v, want STEP1", res.Status)
	}
	if res.Name != "Asha" {
		t.Errorf("Name = %q, want Asha", res.Name)
	}
	if res.PhoneNumber != "9876543210" {
		t.Errorf("PhoneNumber = %q, want the submitted mobile", res.PhoneNumber)
	}
}

func TestVerifyOTP_MissingToken(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":200,"data":[{"status":"VERIFIED"}]}`))
	})
	_, err := client.VerifyOTP(context.Background(), "9876543210", "123456")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
}

func TestUpdateProfile_SendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %q, want PUT", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}
		var body ProfileUpdate
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Name != "Asha" || body.DOB != "1990-01-02" || body.Gender != "female" {
			t.Errorf("body = %+v", body)
		}
		w.Write([]byte(`{"data":[{"status":"STEP1"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithHTTPClient(srv.Client()), WithTokenSource(staticTokens("tok")))
	res, err := client.UpdateProfile(context.Background(), ProfileUpdate{Name: "Asha", DOB: "1990-01-02", Gender: "female"})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if res.Status != userdomain.StatusStep1 {
		t.Errorf("Status = %v, want STEP1", res.Status)
	}
}

func TestUpdateAddress_RequestFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathUpdateAddress {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"data":[{"status":"COMPLETED"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithHTTPClient(srv.Client()), WithTokenSource(staticTokens("tok")))
	res, err := client.UpdateAddress(context.Background(), AddressUpdate{
		BaseAddress: "12 MG Road", PostOfficeName: "GPO", Pincode: "560001", City: "Bengaluru",
	})
	if err != nil {
		t.Fatalf("UpdateAddress: %v", err)
	}
	if res.Status != userdomain.StatusCompleted {
		t.Errorf("Status = %v, want COMPLETED", res.Status)
	}
	for _, k := range []string{"baseAddress", "postOfficeName", "pincode", "city", "district", "state"} {
		if _, ok := received[k]; !ok {
			t.Errorf("request body missing %q", k)
		}
	}
}

func TestUnauthorized_CallsHandlerAndReturnsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"this body is ignored"}`))
	}))
	defer srv.Close()

	calls := 0
	client := NewClient(srv.URL,
		WithHTTPClient(srv.Client()),
		WithUnauthorizedHandler(func(context.Context) { calls++ }),
	)
	_, err := client.UpdateProfile(context.Background(), ProfileUpdate{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if !IsUnauthorized(err) {
		t.Error("IsUnauthorized should be true")
	}
	if ServerMessage(err) != "" {
		t.Error("401 must not surface a server message")
	}
	if calls != 1 {
		t.Errorf("unauthorized handler calls = %d, want 1", calls)
	}
}

func TestUnauthorized_TruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "500")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"ex`))
	}))
	defer srv.Close()

	calls := 0
	client := NewClient(srv.URL,
		WithHTTPClient(srv.Client()),
		WithUnauthorizedHandler(func(context.Context) { calls++ }),
	)
	_, err := client.UpdateAddress(context.Background(), AddressUpdate{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if IsTransport(err) {
		t.Error("a 401 with an unreadable body must not be a transport error")
	}
	if calls != 1 {
		t.Errorf("unauthorized handler calls = %d, want 1", calls)
	}
}

func TestVerifyOTP_NonStringStatusIsUnknown(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":true,"data":[{"accessToken":"abc","status":3}]}`))
	})
	res, err := client.VerifyOTP(context.Background(), "9876543210", "123456")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if res.AccessToken != "abc" {
		t.Errorf("AccessToken = %q, want abc", res.AccessToken)
	}
	if res.Status != userdomain.StatusUnknown {
		t.Errorf("Status = %v, want StatusUnknown", res.Status)
	}
}

func TestNon200_APIErrorWithMessage(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":false,"message":"Invalid OTP"}`))
	})
	_, err := client.VerifyOTP(context.Background(), "9876543210", "000000")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}
	if ServerMessage(err) != "Invalid OTP" {
		t.Errorf("ServerMessage = %q, want Invalid OTP", ServerMessage(err))
	}
	if !strings.Contains(err.Error(), "status=400") {
		t.Errorf("error = %q, want status=400", err.Error())
	}
}

func TestNon200_NonJSONBody(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>bad gateway</html>`))
	})
	_, err := client.SendOTP(context.Background(), "9876543210")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Message != "" {
		t.Errorf("Message = %q, want empty for non-JSON body", apiErr.Message)
	}
}

func TestCreated_IsNotSuccess(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":[{"status":"VERIFIED"}]}`))
	})
	if _, err := client.SendOTP(context.Background(), "9876543210"); err == nil {
		t.Fatal("only HTTP 200 counts as success")
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if ok {
			conn, _, _ := hj.Hijack()
			conn.Close()
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	_, err := client.SendOTP(context.Background(), "9876543210")
	if !IsTransport(err) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(srv.URL, WithHTTPClient(srv.Client()), WithTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := client.SendOTP(context.Background(), "9876543210")
	if !IsTransport(err) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want to wrap context.DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout did not bound the request")
	}
}

func TestMalformedSuccessBody(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	if _, err := client.SendOTP(context.Background(), "9876543210"); !IsTransport(err) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestRefresh_SendsCookieAndRotates(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathRefresh {
			t.Errorf("path = %q", r.URL.Path)
		}
		ck, err := r.Cookie("refreshToken")
		if err != nil || ck.Value != "old" {
			t.Errorf("refresh cookie = %v %v, want old", ck, err)
		}
		w.Write([]byte(`{"status":200,"data":{"accessToken":"new-access","refreshToken":"new-refresh"}}`))
	})

	res, err := client.Refresh(context.Background(), "old")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.AccessToken != "new-access" || res.RefreshToken != "new-refresh" {
		t.Errorf("Refresh = %+v", res)
	}
}

func TestRefresh_RotationFromSetCookie(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "from-cookie", Path: "/"})
		w.Write([]byte(`{"data":{"accessToken":"a2"}}`))
	})
	res, err := client.Refresh(context.Background(), "old")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.RefreshToken != "from-cookie" {
		t.Errorf("RefreshToken = %q, want from-cookie", res.RefreshToken)
	}
}

func TestRefresh_NoRotation(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"accessToken":"a2"}}`))
	})
	res, err := client.Refresh(context.Background(), "old")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty without rotation", res.RefreshToken)
	}
}

func TestDecodeFirst(t *testing.T) {
	var out StatusResult
	for _, raw := range []string{``, `null`, `[]`, `[null]`} {
		if err := decodeFirst(json.RawMessage(raw), &out); err != nil {
			t.Errorf("decodeFirst(%q): %v", raw, err)
		}
	}
	if err := decodeFirst(json.RawMessage(`"text"`), &out); err == nil {
		t.Error("decodeFirst should reject a scalar data item")
	}
	if err := decodeFirst(json.RawMessage(`{"status":"COMPLETED"}`), &out); err != nil || out.Status != userdomain.StatusCompleted {
		t.Errorf("decodeFirst object = %v %v", out.Status, err)
	}
}
