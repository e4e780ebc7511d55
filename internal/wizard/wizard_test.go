package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pickup-portal/client/internal/authapi"
	"pickup-portal/client/internal/session"
	sessiondomain "pickup-portal/client/internal/session/domain"
	"pickup-portal/client/internal/session/repository"
	"pickup-portal/client/internal/telemetry"
	teldomain "pickup-portal/client/internal/telemetry/domain"
	userdomain "pickup-portal/client/internal/user/domain"
)

var testNow = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

// fakeAPI records calls and replays canned replies.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	sendRes    *authapi.StatusResult
	sendErr    error
	verifyRes  *authapi.VerifyResult
	verifyErr  error
	profileRes *authapi.StatusResult
	profileErr error
	addressRes *authapi.StatusResult
	addressErr error

	gotProfile authapi.ProfileUpdate
	gotAddress authapi.AddressUpdate
	// block, when set, is waited on inside every call.
	block chan struct{}
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) SendOTP(ctx context.Context, mobile string) (*authapi.StatusResult, error) {
	f.record("send")
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.sendRes == nil {
		return &authapi.StatusResult{}, nil
	}
	return f.sendRes, nil
}

func (f *fakeAPI) VerifyOTP(ctx context.Context, mobile, otp string) (*authapi.VerifyResult, error) {
	f.record("verify")
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verifyRes, nil
}

func (f *fakeAPI) UpdateProfile(ctx context.Context, in authapi.ProfileUpdate) (*authapi.StatusResult, error) {
	f.record("profile")
	f.gotProfile = in
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profileRes, nil
}

func (f *fakeAPI) UpdateAddress(ctx context.Context, in authapi.AddressUpdate) (*authapi.StatusResult, error) {
	f.record("address")
	f.gotAddress = in
	if f.addressErr != nil {
		return nil, f.addressErr
	}
	return f.addressRes, nil
}

type harness struct {
	api       *fakeAPI
	repo      *repository.MemoryRepository
	store     *session.Store
	wiz       *Wizard
	completed int
}

func newHarness(t *testing.T, api *fakeAPI) *harness {
	t.Helper()
	h := &harness{api: api, repo: repository.NewMemoryRepository()}
	h.store = session.NewStore(h.repo)
	if err := h.store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	h.wiz = New(api, h.store,
		WithOnComplete(func() { h.completed++ }),
		WithClock(func() time.Time { return testNow }),
	)
	return h
}

func (h *harness) login(t *testing.T, status userdomain.Status) {
	t.Helper()
	if err := h.store.Login(context.Background(), "abc", userdomain.Profile{PhoneNumber: "9876543210", Status: status}, ""); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func (h *harness) set(t *testing.T, f Field, v string) {
	t.Helper()
	if err := h.wiz.SetField(f, v); err != nil {
		t.Fatalf("SetField(%s): %v", f, err)
	}
}

func (h *harness) submit(t *testing.T) State {
	t.Helper()
	if err := h.wiz.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return h.wiz.State()
}

func fillProfile(t *testing.T, h *harness) {
	h.set(t, FieldName, "Asha Rao")
	h.set(t, FieldDOB, "1990-04-12")
	h.set(t, FieldGender, "Female")
}

func fillAddress(t *testing.T, h *harness) {
	h.set(t, FieldBaseAddress, "12 MG Road")
	h.set(t, FieldPostOfficeName, "Shivajinagar")
	h.set(t, FieldPincode, "560001")
	h.set(t, FieldCity, "Bengaluru")
}

func TestOpen_ResumeIsPureFunctionOfStatus(t *testing.T) {
	tests := []struct {
		status userdomain.Status
		want   Step
	}{
		{userdomain.StatusInitiated, StepProfile},
		{userdomain.StatusVerified, StepProfile},
		{userdomain.StatusStep1, StepAddress},
		{userdomain.StatusUnknown, StepProfile},
	}
	for _, tt := range tests {
		h := newHarness(t, &fakeAPI{})
		h.login(t, tt.status)
		st := h.wiz.Open()
		if !st.Open || st.Step != tt.want {
			t.Errorf("status %v: Open = step %v open %v, want %v", tt.status, st.Step, st.Open, tt.want)
		}
	}
}

func TestOpen_Unauthenticated(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	st := h.wiz.Open()
	if st.Step != StepPhone || !st.Open {
		t.Errorf("Open = %+v, want phone step", st)
	}
}

func TestOpen_ReevaluatesEveryTime(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	h.login(t, userdomain.StatusVerified)
	if st := h.wiz.Open(); st.Step != StepProfile {
		t.Fatalf("first open step = %v, want profile", st.Step)
	}
	h.wiz.Cancel()

	st1 := userdomain.StatusStep1
	if err := h.store.UpdateUser(context.Background(), userdomain.ProfilePatch{Status: &st1}); err != nil {
		t.Fatal(err)
	}
	if st := h.wiz.Open(); st.Step != StepAddress {
		t.Errorf("reopen step = %v, want address", st.Step)
	}
}

func TestOpen_CompletedFiresCallbackAndStaysClosed(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)
	h.login(t, userdomain.StatusCompleted)
	st := h.wiz.Open()
	if st.Open || st.Outcome != OutcomeCompleted {
		t.Errorf("Open = %+v, want closed with completed outcome", st)
	}
	if h.completed != 1 {
		t.Errorf("callback fired %d times, want 1", h.completed)
	}
	if api.callCount() != 0 {
		t.Error("Open must not call the API")
	}
	if err := h.wiz.Submit(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after completion = %v, want ErrClosed", err)
	}
}

func TestOpen_AlreadyOpenIsNoop(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	h.wiz.Open()
	h.set(t, FieldMobile, "98765")
	if st := h.wiz.Open(); st.Fields[FieldMobile] != "98765" {
		t.Error("opening an open wizard should not reset its fields")
	}
}

func TestScenario_PhoneThenOTPToAddress(t *testing.T) {
	api := &fakeAPI{
		sendRes: &authapi.StatusResult{Status: userdomain.StatusVerified},
		verifyRes: &authapi.VerifyResult{
			AccessToken: "abc",
			Profile:     userdomain.Profile{PhoneNumber: "9876543210", Status: userdomain.StatusStep1},
		},
	}
	h := newHarness(t, api)
	h.wiz.Open()

	h.set(t, FieldMobile, "9876543210")
	st := h.submit(t)
	if st.Step != StepOTP || st.ErrorMessage != "" {
		t.Fatalf("after phone: step %v err %q, want otp", st.Step, st.ErrorMessage)
	}
	if st.StatusHint != userdomain.StatusVerified {
		t.Errorf("StatusHint = %v, want VERIFIED", st.StatusHint)
	}

	h.set(t, FieldOTP, "123456")
	st = h.submit(t)
	if st.Step != StepAddress {
		t.Fatalf("after otp: step %v, want address", st.Step)
	}
	if !h.store.IsAuthenticated() || h.store.AccessToken() != "abc" {
		t.Errorf("session authenticated=%v token=%q", h.store.IsAuthenticated(), h.store.AccessToken())
	}
	if v, _, _ := h.repo.Get(context.Background(), sessiondomain.KeyAccessToken); v != "abc" {
		t.Errorf("persisted token = %q, want abc", v)
	}
}

func TestOTP_StatusBranches(t *testing.T) {
	tests := []struct {
		status userdomain.Status
		want   Step
	}{
		{userdomain.StatusInitiated, StepProfile},
		{userdomain.StatusVerified, StepProfile},
		{userdomain.StatusStep1, StepAddress},
		{userdomain.StatusUnknown, StepProfile},
		{userdomain.StatusUnset, StepProfile},
	}
	for _, tt := range tests {
		api := &fakeAPI{verifyRes: &authapi.VerifyResult{AccessToken: "t", Profile: userdomain.Profile{Status: tt.status}}}
		h := newHarness(t, api)
		h.wiz.Open()
		h.set(t, FieldMobile, "9876543210")
		h.submit(t)
		h.set(t, FieldOTP, "123456")
		if st := h.submit(t); st.Step != tt.want {
			t.Errorf("status %v: step = %v, want %v", tt.status, st.Step, tt.want)
		}
	}
}

func TestOTP_CompletedFiresCallbackOnce(t *testing.T) {
	api := &fakeAPI{verifyRes: &authapi.VerifyResult{AccessToken: "t", Profile: userdomain.Profile{Status: userdomain.StatusCompleted}}}
	h := newHarness(t, api)
	h.wiz.Open()
	h.set(t, FieldMobile, "9876543210")
	h.submit(t)
	h.set(t, FieldOTP, "123456")
	st := h.submit(t)

	if h.completed != 1 {
		t.Errorf("callback fired %d times, want 1", h.completed)
	}
	if st.Open || st.Step == StepProfile || st.Step == StepAddress {
		t.Errorf("state = %+v, want closed without profile/address step", st)
	}
	if err := h.wiz.Submit(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after completion = %v, want ErrClosed", err)
	}
	if h.completed != 1 {
		t.Errorf("callback fired %d times after extra submit, want 1", h.completed)
	}
	if !h.store.IsAuthenticated() {
		t.Error("login must have happened before closing")
	}
}

func TestPhone_NineDigitsRejectedLocally(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)
	h.wiz.Open()
	h.set(t, FieldMobile, "987654321")
	st := h.submit(t)
	if api.callCount() != 0 {
		t.Error("invalid phone must not reach the network")
	}
	if st.Step != StepPhone {
		t.Errorf("step = %v, want phone", st.Step)
	}
	if st.FieldErrors[FieldMobile] == "" {
		t.Error("field-level error should be shown")
	}
	if st.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want only a field error", st.ErrorMessage)
	}

	h.set(t, FieldMobile, "9876543210")
	if st := h.wiz.State(); len(st.FieldErrors) != 0 {
		t.Error("editing the field should clear its error")
	}
}

func TestPhone_FailureKeepsFieldAndShowsServerMessage(t *testing.T) {
	api := &fakeAPI{sendErr: &authapi.APIError{StatusCode: 400, Message: "Mobile number blocked"}}
	h := newHarness(t, api)
	h.wiz.Open()
	h.set(t, FieldMobile, "9876543210")
	st := h.submit(t)
	if st.Step != StepPhone || st.ErrorMessage != "Mobile number blocked" {
		t.Errorf("state = step %v msg %q", st.Step, st.ErrorMessage)
	}
	if st.Fields[FieldMobile] != "9876543210" {
		t.Error("phone field must not be cleared on failure")
	}
	if st.IsSubmitting {
		t.Error("IsSubmitting should be reset")
	}
}

func TestFailureMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&authapi.APIError{StatusCode: 500}, MsgGenericFailure},
		{&authapi.APIError{StatusCode: 400, Message: "Invalid OTP"}, "Invalid OTP"},
		{authapi.NewTransportError(errors.New("dial tcp: refused")), MsgNetworkFailure},
		{authapi.ErrUnauthorized, MsgGenericFailure},
	}
	for _, tt := range tests {
		if got := failureMessage(tt.err); got != tt.want {
			t.Errorf("failureMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestOTP_FailureStaysOnStepKeepsOTP(t *testing.T) {
	api := &fakeAPI{verifyErr: &authapi.APIError{StatusCode: 400, Message: "Invalid OTP"}}
	h := newHarness(t, api)
	h.wiz.Open()
	h.set(t, FieldMobile, "9876543210")
	h.submit(t)
	h.set(t, FieldOTP, "000000")
	st := h.submit(t)
	if st.Step != StepOTP || st.ErrorMessage != "Invalid OTP" || st.Fields[FieldOTP] != "000000" {
		t.Errorf("state = %+v", st)
	}
	if h.store.IsAuthenticated() {
		t.Error("failed verification must not log in")
	}
}

func TestOTP_401AtVerifyIsANormalError(t *testing.T) {
	api := &fakeAPI{verifyErr: authapi.ErrUnauthorized}
	h := newHarness(t, api)
	h.wiz.Open()
	h.set(t, FieldMobile, "9876543210")
	h.submit(t)
	h.set(t, FieldOTP, "123456")
	st := h.submit(t)
	if !st.Open || st.Step != StepOTP || st.ErrorMessage == "" {
		t.Errorf("state = %+v, want open at otp with a message", st)
	}
}

func TestProfile_SuccessAdvancesAndCaches(t *testing.T) {
	api := &fakeAPI{profileRes: &authapi.StatusResult{Status: userdomain.StatusStep1}}
	h := newHarness(t, api)
	h.login(t, userdomain.StatusVerified)
	h.wiz.Open()
	fillProfile(t, h)
	st := h.submit(t)
	if st.Step != StepAddress {
		t.Fatalf("step = %v, want address (err %q %v)", st.Step, st.ErrorMessage, st.FieldErrors)
	}
	if api.gotProfile.Gender != "female" || api.gotProfile.DOB != "1990-04-12" || api.gotProfile.Name != "Asha Rao" {
		t.Errorf("profile request = %+v", api.gotProfile)
	}
	snap := h.store.Snapshot()
	if snap.User.Name != "Asha Rao" || snap.User.Status != userdomain.StatusStep1 {
		t.Errorf("cached user = %+v", *snap.User)
	}
}

func TestProfile_Validation(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)
	h.login(t, userdomain.StatusVerified)
	h.wiz.Open()
	h.set(t, FieldDOB, "2027-01-01")
	st := h.submit(t)
	for _, f := range []Field{FieldName, FieldDOB, FieldGender} {
		if st.FieldErrors[f] == "" {
			t.Errorf("missing validation error for %s", f)
		}
	}
	if api.callCount() != 0 {
		t.Error("invalid profile must not reach the network")
	}
}

func TestUnauthorizedAtProfileOrAddressExpiresSession(t *testing.T) {
	for _, status := range []userdomain.Status{userdomain.StatusVerified, userdomain.StatusStep1} {
		api := &fakeAPI{profileErr: authapi.ErrUnauthorized, addressErr: authapi.ErrUnauthorized}
		h := newHarness(t, api)
		h.login(t, status)
		st := h.wiz.Open()
		if st.Step == StepProfile {
			fillProfile(t, h)
		} else {
			fillAddress(t, h)
		}
		st = h.submit(t)

		if st.Open {
			t.Errorf("status %v: wizard should close", status)
		}
		if st.Outcome != OutcomeSessionExpired {
			t.Errorf("Outcome = %v, want session_expired", st.Outcome)
		}
		if st.ErrorMessage != "" || len(st.FieldErrors) != 0 {
			t.Errorf("no step-local error should be rendered, got %q %v", st.ErrorMessage, st.FieldErrors)
		}
		if h.store.IsAuthenticated() || h.repo.Len() != 0 {
			t.Errorf("session should be cleared, repo len %d", h.repo.Len())
		}
		if h.completed != 0 {
			t.Error("success callback must not fire")
		}
	}
}

func TestAddress_CompletedClosesAndKeepsToken(t *testing.T) {
	api := &fakeAPI{addressRes: &authapi.StatusResult{Status: userdomain.StatusCompleted}}
	h := newHarness(t, api)
	h.login(t, userdomain.StatusStep1)
	h.wiz.Open()
	fillAddress(t, h)
	h.set(t, FieldState, "Karnataka")
	st := h.submit(t)

	if st.Open || st.Outcome != OutcomeCompleted || h.completed != 1 {
		t.Errorf("state = %+v completed=%d", st, h.completed)
	}
	if v, _, _ := h.repo.Get(context.Background(), sessiondomain.KeyAccessToken); v != "abc" {
		t.Errorf("access token = %q, want abc retained from login", v)
	}
	if api.gotAddress.District != "" || api.gotAddress.State != "Karnataka" {
		t.Errorf("address request = %+v", api.gotAddress)
	}
	if h.store.Status() != userdomain.StatusCompleted {
		t.Errorf("cached status = %v, want COMPLETED", h.store.Status())
	}
}

func TestAddress_WithoutCompletedStaysOpen(t *testing.T) {
	api := &fakeAPI{addressRes: &authapi.StatusResult{Status: userdomain.StatusStep1}}
	h := newHarness(t, api)
	h.login(t, userdomain.StatusStep1)
	h.wiz.Open()
	fillAddress(t, h)
	st := h.submit(t)
	if !st.Open || st.Step != StepAddress || h.completed != 0 {
		t.Errorf("state = %+v completed=%d, want open at address", st, h.completed)
	}
	if st.Notice == "" || st.ErrorMessage != "" {
		t.Errorf("Notice = %q ErrorMessage = %q", st.Notice, st.ErrorMessage)
	}
}

func TestAddress_PincodeValidation(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)
	h.login(t, userdomain.StatusStep1)
	h.wiz.Open()
	fillAddress(t, h)
	h.set(t, FieldPincode, "56001")
	st := h.submit(t)
	if st.FieldErrors[FieldPincode] == "" || api.callCount() != 0 {
		t.Errorf("pincode error = %q calls = %d", st.FieldErrors[FieldPincode], api.callCount())
	}
}

func TestCancel_ResetsWithoutAPI(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)
	h.wiz.Open()
	h.set(t, FieldMobile, "9876543210")
	h.wiz.Cancel()
	st := h.wiz.State()
	if st.Open || st.Outcome != OutcomeCancelled || len(st.Fields) != 0 {
		t.Errorf("after cancel = %+v", st)
	}
	if api.callCount() != 0 {
		t.Error("cancel must not call the API")
	}
	if err := h.wiz.SetField(FieldMobile, "1"); !errors.Is(err, ErrClosed) {
		t.Errorf("SetField after cancel = %v, want ErrClosed", err)
	}
	if st := h.wiz.Open(); st.Step != StepPhone || len(st.Fields) != 0 || st.Outcome != OutcomeNone {
		t.Errorf("reopen = %+v, want fresh phone step", st)
	}
}

func TestBack_FromOTPKeepsMobile(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api)
	h.wiz.Open()
	if h.wiz.Back() {
		t.Error("Back from the phone step should not move")
	}
	h.set(t, FieldMobile, "9876543210")
	h.submit(t)
	h.set(t, FieldOTP, "12")
	if !h.wiz.Back() {
		t.Fatal("Back from otp should move")
	}
	st := h.wiz.State()
	if st.Step != StepPhone || st.Fields[FieldMobile] != "9876543210" || st.Fields[FieldOTP] != "" {
		t.Errorf("after Back = %+v", st)
	}
	h.submit(t)
	if api.callCount() != 2 {
		t.Errorf("resend should call login again, calls = %d", api.callCount())
	}
}

func TestSubmit_InFlightGuard(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})}
	h := newHarness(t, api)
	h.wiz.Open()
	h.set(t, FieldMobile, "9876543210")

	done := make(chan error, 1)
	go func() { done <- h.wiz.Submit(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for api.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !h.wiz.State().IsSubmitting {
		t.Error("IsSubmitting should be true while the call is running")
	}
	if err := h.wiz.Submit(context.Background()); !errors.Is(err, ErrSubmitInFlight) {
		t.Errorf("second Submit = %v, want ErrSubmitInFlight", err)
	}
	if h.wiz.Back() {
		t.Error("Back should be refused while submitting")
	}
	close(api.block)
	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if st := h.wiz.State(); st.IsSubmitting || st.Step != StepOTP {
		t.Errorf("after reply = %+v", st)
	}
}

func TestCancelDuringSubmitDiscardsReply(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{}), sendRes: &authapi.StatusResult{}}
	h := newHarness(t, api)
	h.wiz.Open()
	h.set(t, FieldMobile, "9876543210")
	done := make(chan error, 1)
	go func() { done <- h.wiz.Submit(context.Background()) }()
	for api.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	h.wiz.Cancel()
	close(api.block)
	<-done
	if st := h.wiz.State(); st.Open || st.Outcome != OutcomeCancelled {
		t.Errorf("late reply must not reopen the wizard: %+v", st)
	}
}

// TestEndToEnd_HTTP drives the wizard through the real client against an httptest server.
func TestEndToEnd_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply := func(v any) {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": true, "data": []any{v}})
		}
		switch r.URL.Path {
		case authapi.PathLogin:
			reply(map[string]string{"status": "VERIFIED"})
		case authapi.PathVerifyOTP:
			reply(map[string]string{"accessToken": "abc", "refreshToken": "r1", "status": "VERIFIED"})
		case authapi.PathUpdateProfile:
			if r.Header.Get("Authorization") != "Bearer abc" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			reply(map[string]string{"status": "STEP1"})
		case authapi.PathUpdateAddress:
			reply(map[string]string{"status": "COMPLETED"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	repo := repository.NewMemoryRepository()
	store := session.NewStore(repo)
	_ = store.Initialize(context.Background())
	client := authapi.NewClient(srv.URL,
		authapi.WithHTTPClient(srv.Client()),
		authapi.WithTokenSource(store),
		authapi.WithUnauthorizedHandler(store.ForceLogout),
	)
	completed := 0
	wiz := New(client, store, WithOnComplete(func() { completed++ }), WithClock(func() time.Time { return testNow }))
	h := &harness{repo: repo, store: store, wiz: wiz}

	wiz.Open()
	h.set(t, FieldMobile, "9876543210")
	h.submit(t)
	h.set(t, FieldOTP, "123456")
	if st := h.submit(t); st.Step != StepProfile {
		t.Fatalf("after otp step = %v (%q)", st.Step, st.ErrorMessage)
	}
	fillProfile(t, h)
	if st := h.submit(t); st.Step != StepAddress {
		t.Fatalf("after profile step = %v (%q)", st.Step, st.ErrorMessage)
	}
	fillAddress(t, h)
	st := h.submit(t)
	if st.Open || completed != 1 {
		t.Fatalf("after address = %+v completed=%d", st, completed)
	}
	c, _ := repo.GetCookie(context.Background(), sessiondomain.CookieRefreshToken)
	if c == nil || c.Value != "r1" {
		t.Errorf("refresh cookie = %+v, want r1", c)
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []teldomain.EventType
}

func (l *eventLog) Emit(ctx context.Context, ev *teldomain.SessionEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev.Type)
	return nil
}

func (l *eventLog) count(typ teldomain.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == typ {
			n++
		}
	}
	return n
}

// newHTTPHarness wires a real client and store against h, with ForceLogout as the 401 handler.
func newHTTPHarness(t *testing.T, handler http.HandlerFunc, events *eventLog) *harness {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	repo := repository.NewMemoryRepository()
	store := session.NewStore(repo, session.WithEmitter(events))
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	client := authapi.NewClient(srv.URL,
		authapi.WithHTTPClient(srv.Client()),
		authapi.WithTokenSource(store),
		authapi.WithUnauthorizedHandler(store.ForceLogout),
	)
	h := &harness{repo: repo, store: store}
	h.wiz = New(client, store, WithOnComplete(func() { h.completed++ }), WithClock(func() time.Time { return testNow }))
	return h
}

func TestUnauthorizedAtProfile_SingleLogoutEvent(t *testing.T) {
	events := &eventLog{}
	h := newHTTPHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, events)
	h.login(t, userdomain.StatusVerified)
	if st := h.wiz.Open(); st.Step != StepProfile {
		t.Fatalf("step = %v, want profile", st.Step)
	}
	fillProfile(t, h)
	st := h.submit(t)
	if st.Open || st.Outcome != OutcomeSessionExpired || st.ErrorMessage != "" {
		t.Fatalf("state = %+v", st)
	}
	if h.store.IsAuthenticated() || h.repo.Len() != 0 {
		t.Errorf("session should be cleared, repo len %d", h.repo.Len())
	}

	if !telemetry.Drain(time.Second) {
		t.Fatal("session events did not drain")
	}
	if n := events.count(teldomain.EventForcedLogout); n != 1 {
		t.Errorf("forced_logout events = %d, want 1", n)
	}
	if n := events.count(teldomain.EventLogout); n != 0 {
		t.Errorf("logout events = %d, want 0", n)
	}
}

func TestOTP_NonStringStatusResumesAtProfile(t *testing.T) {
	h := newHTTPHarness(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case authapi.PathLogin:
			w.Write([]byte(`{"status":true,"data":[{"status":"VERIFIED"}]}`))
		case authapi.PathVerifyOTP:
			w.Write([]byte(`{"status":true,"data":[{"accessToken":"abc","status":3}]}`))
		default:
			http.NotFound(w, r)
		}
	}, &eventLog{})
	h.wiz.Open()
	h.set(t, FieldMobile, "9876543210")
	h.submit(t)
	h.set(t, FieldOTP, "123456")
	st := h.submit(t)
	if st.Step != StepProfile || st.ErrorMessage != "" {
		t.Fatalf("step = %v (%q), want profile with no error", st.Step, st.ErrorMessage)
	}
	if !h.store.IsAuthenticated() || h.store.AccessToken() != "abc" {
		t.Error("verify with an unrecognized status must still log in")
	}
}
