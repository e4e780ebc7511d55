// Package wizard walks a customer through phone entry, OTP verification, profile details and
// address details, resuming at the step implied by the server-reported status. Submit calls
// the Authentication API for the current step and moves the state machine on the reply.
package wizard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pickup-portal/client/internal/authapi"
	"pickup-portal/client/internal/logging"
	userdomain "pickup-portal/client/internal/user/domain"
)

var (
	// ErrClosed is returned when operating on a wizard that is not open.
	ErrClosed = errors.New("wizard: closed")
	// ErrSubmitInFlight is returned by Submit while a previous submit is still running.
	ErrSubmitInFlight = errors.New("wizard: submit already in flight")
)

// Messages shown for API failures.
const (
	MsgGenericFailure = "Something went wrong. Please try again."
	MsgNetworkFailure = "Could not reach the server. Check your connection and try again."
	MsgSessionSave    = "Could not save your session. Please try again."
	MsgAwaitingStatus = "Address saved. Your profile is still being reviewed."
)

// API is the part of the Authentication API the wizard calls.
type API interface {
	SendOTP(ctx context.Context, mobile string) (*authapi.StatusResult, error)
	VerifyOTP(ctx context.Context, mobile, otp string) (*authapi.VerifyResult, error)
	UpdateProfile(ctx context.Context, in authapi.ProfileUpdate) (*authapi.StatusResult, error)
	UpdateAddress(ctx context.Context, in authapi.AddressUpdate) (*authapi.StatusResult, error)
}

// Session is the part of the session store the wizard reads and writes.
type Session interface {
	IsAuthenticated() bool
	Status() userdomain.Status
	Login(ctx context.Context, accessToken string, user userdomain.Profile, refreshToken string) error
	Logout(ctx context.Context) error
	UpdateUser(ctx context.Context, patch userdomain.ProfilePatch) error
}

// State is a copy of the wizard state.
type State struct {
	Open         bool
	Step         Step
	Fields       Fields
	ErrorMessage string
	// FieldErrors holds client-side validation failures of the current step.
	FieldErrors map[Field]string
	// Notice is informational text that is not an error.
	Notice       string
	IsSubmitting bool
	// StatusHint is the status returned when the OTP was requested.
	StatusHint userdomain.Status
	// Outcome is how the wizard last closed; OutcomeNone while open.
	Outcome Outcome
}

// Wizard is the progressive profile state machine. Methods are safe for concurrent use;
// Submit is typically run off the UI goroutine.
type Wizard struct {
	api        API
	session    Session
	onComplete func()
	logger     zerolog.Logger
	now        func() time.Time

	mu    sync.Mutex
	state State
	// gen increments on every open and close so a reply that lands after the wizard
	// was closed is discarded.
	gen uint64
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithOnComplete sets the success callback. It fires once per completion, outside the lock.
func WithOnComplete(fn func()) Option {
	return func(w *Wizard) { w.onComplete = fn }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Wizard) { w.logger = l }
}

// WithClock overrides time.Now for date of birth validation.
func WithClock(now func() time.Time) Option {
	return func(w *Wizard) { w.now = now }
}

// New returns a closed wizard.
func New(api API, session Session, opts ...Option) *Wizard {
	w := &Wizard{
		api:     api,
		session: session,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.state = initialState()
	return w
}

func initialState() State {
	return State{Step: StepPhone, Fields: Fields{}, FieldErrors: map[Field]string{}}
}

// Open shows the wizard at the step implied by the session: the phone step when
// unauthenticated, otherwise the step for the cached status. A COMPLETED customer fires
// the success callback and the wizard stays closed. Opening an open wizard is a no-op.
func (w *Wizard) Open() State {
	w.mu.Lock()
	if w.state.Open {
		defer w.mu.Unlock()
		return w.snapshotLocked()
	}

	w.gen++
	w.state = initialState()
	if w.session.IsAuthenticated() {
		status := w.session.Status()
		step, done := ResumeStep(status)
		if done {
			w.state.Step = StepNone
			w.state.Outcome = OutcomeCompleted
			st := w.snapshotLocked()
			w.mu.Unlock()
			w.logger.Debug().Msg("wizard: profile already complete")
			w.fireComplete()
			return st
		}
		w.state.Step = step
		w.logger.Debug().Str("status", status.String()).Str("step", step.String()).Msg("wizard: resuming")
	}
	w.state.Open = true
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// State returns a copy of the current state.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// IsOpen reports whether the wizard is showing a step.
func (w *Wizard) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Open
}

// SetField records a form value and clears that field's validation error.
func (w *Wizard) SetField(f Field, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.Open {
		return ErrClosed
	}
	w.state.Fields[f] = value
	delete(w.state.FieldErrors, f)
	return nil
}

// Back returns from the OTP step to the phone step, keeping the mobile number, so a new
// OTP can be requested. It is the only backward transition and reports whether it moved.
func (w *Wizard) Back() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.Open || w.state.IsSubmitting || w.state.Step != StepOTP {
		return false
	}
	w.state.Step = StepPhone
	delete(w.state.Fields, FieldOTP)
	w.state.ErrorMessage = ""
	w.state.FieldErrors = map[Field]string{}
	return true
}

// Cancel closes the wizard and resets its state without calling the API.
func (w *Wizard) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.Open {
		return
	}
	w.closeLocked(OutcomeCancelled)
}

// Submit validates the current step and, when valid, calls the API for it. Validation and
// API failures are reported through State; the returned error is ErrClosed or
// ErrSubmitInFlight. Submit blocks for the duration of the call.
func (w *Wizard) Submit(ctx context.Context) error {
	w.mu.Lock()
	if !w.state.Open {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.state.IsSubmitting {
		w.mu.Unlock()
		return ErrSubmitInFlight
	}
	step := w.state.Step
	fields := w.state.Fields.clone()
	w.state.ErrorMessage = ""
	w.state.Notice = ""
	w.state.FieldErrors = map[Field]string{}
	if errs := Validate(step, fields, w.now()); len(errs) > 0 {
		for _, e := range errs {
			w.state.FieldErrors[e.Field] = e.Message
		}
		w.mu.Unlock()
		return nil
	}
	w.state.IsSubmitting = true
	gen := w.gen
	w.mu.Unlock()

	var complete bool
	switch step {
	case StepPhone:
		w.submitPhone(ctx, gen, fields)
	case StepOTP:
		complete = w.submitOTP(ctx, gen, fields)
	case StepProfile:
		w.submitProfile(ctx, gen, fields)
	case StepAddress:
		complete = w.submitAddress(ctx, gen, fields)
	}
	if complete {
		w.fireComplete()
	}
	return nil
}

func (w *Wizard) submitPhone(ctx context.Context, gen uint64, fs Fields) {
	mobile := fs.Get(FieldMobile)
	res, err := w.api.SendOTP(ctx, mobile)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.currentLocked(gen) {
		return
	}
	w.state.IsSubmitting = false
	if err != nil {
		w.state.ErrorMessage = failureMessage(err)
		w.logger.Info().Err(err).Str("phone", logging.MaskPhone(mobile)).Msg("wizard: send otp failed")
		return
	}
	w.state.StatusHint = res.Status
	w.state.Step = StepOTP
}

// submitOTP logs the customer in before branching so an interrupted flow resumes correctly.
// It reports whether the profile is complete.
func (w *Wizard) submitOTP(ctx context.Context, gen uint64, fs Fields) bool {
	mobile := fs.Get(FieldMobile)
	res, err := w.api.VerifyOTP(ctx, mobile, fs.Get(FieldOTP))
	var loginErr error
	if err == nil {
		loginErr = w.session.Login(ctx, res.AccessToken, res.Profile, res.RefreshToken)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.currentLocked(gen) {
		return false
	}
	w.state.IsSubmitting = false
	switch {
	case err != nil:
		w.state.ErrorMessage = failureMessage(err)
		w.logger.Info().Err(err).Str("phone", logging.MaskPhone(mobile)).Msg("wizard: verify otp failed")
		return false
	case loginErr != nil:
		w.state.ErrorMessage = MsgSessionSave
		w.logger.Error().Err(loginErr).Msg("wizard: persist session")
		return false
	}

	next, done := ResumeStep(res.Status)
	w.logger.Info().Str("status", res.Status.String()).Str("next", next.String()).Msg("wizard: otp verified")
	if done {
		w.closeLocked(OutcomeCompleted)
		return true
	}
	w.state.Step = next
	return false
}

func (w *Wizard) submitProfile(ctx context.Context, gen uint64, fs Fields) {
	in := authapi.ProfileUpdate{
		Name:   fs.Get(FieldName),
		DOB:    fs.Get(FieldDOB),
		Gender: normalizeGender(fs.Get(FieldGender)),
	}
	res, err := w.api.UpdateProfile(ctx, in)
	if err != nil && authapi.IsUnauthorized(err) {
		w.expire(ctx, gen)
		return
	}
	if err == nil {
		patch := userdomain.ProfilePatch{Name: &in.Name, DOB: &in.DOB, Gender: &in.Gender}
		if res.Status != userdomain.StatusUnset {
			patch.Status = &res.Status
		}
		if uerr := w.session.UpdateUser(ctx, patch); uerr != nil {
			w.logger.Warn().Err(uerr).Msg("wizard: cache profile")
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.currentLocked(gen) {
		return
	}
	w.state.IsSubmitting = false
	if err != nil {
		w.state.ErrorMessage = failureMessage(err)
		w.logger.Info().Err(err).Msg("wizard: update profile failed")
		return
	}
	w.state.Step = StepAddress
}

// submitAddress completes only when the reply explicitly says COMPLETED.
func (w *Wizard) submitAddress(ctx context.Context, gen uint64, fs Fields) bool {
	in := authapi.AddressUpdate{
		BaseAddress:    fs.Get(FieldBaseAddress),
		PostOfficeName: fs.Get(FieldPostOfficeName),
		Pincode:        fs.Get(FieldPincode),
		City:           fs.Get(FieldCity),
		District:       fs.Get(FieldDistrict),
		State:          fs.Get(FieldState),
	}
	res, err := w.api.UpdateAddress(ctx, in)
	if err != nil && authapi.IsUnauthorized(err) {
		w.expire(ctx, gen)
		return false
	}
	if err == nil {
		patch := userdomain.ProfilePatch{BaseAddress: &in.BaseAddress, Pincode: &in.Pincode}
		if res.Status != userdomain.StatusUnset {
			patch.Status = &res.Status
		}
		if uerr := w.session.UpdateUser(ctx, patch); uerr != nil {
			w.logger.Warn().Err(uerr).Msg("wizard: cache address")
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.currentLocked(gen) {
		return false
	}
	w.state.IsSubmitting = false
	if err != nil {
		w.state.ErrorMessage = failureMessage(err)
		w.logger.Info().Err(err).Msg("wizard: update address failed")
		return false
	}
	if res.Status != userdomain.StatusCompleted {
		w.state.Notice = MsgAwaitingStatus
		w.logger.Info().Str("status", res.Status.String()).Msg("wizard: address saved without completion")
		return false
	}
	w.closeLocked(OutcomeCompleted)
	return true
}

// expire handles a 401 at the profile or address step: the session is cleared and the
// wizard closes without an error message. A session the API client already force-logged
// out is left alone.
func (w *Wizard) expire(ctx context.Context, gen uint64) {
	if w.session.IsAuthenticated() {
		if err := w.session.Logout(context.WithoutCancel(ctx)); err != nil {
			w.logger.Error().Err(err).Msg("wizard: logout after 401")
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.currentLocked(gen) {
		return
	}
	w.logger.Warn().Str("step", w.state.Step.String()).Msg("wizard: session expired mid-flow")
	w.closeLocked(OutcomeSessionExpired)
}

func (w *Wizard) currentLocked(gen uint64) bool {
	return w.state.Open && w.gen == gen
}

// closeLocked resets to the initial state, marks the wizard closed and records outcome.
func (w *Wizard) closeLocked(outcome Outcome) {
	w.gen++
	w.state = initialState()
	w.state.Outcome = outcome
}

func (w *Wizard) fireComplete() {
	if w.onComplete != nil {
		w.onComplete()
	}
}

func (w *Wizard) snapshotLocked() State {
	st := w.state
	st.Fields = w.state.Fields.clone()
	st.FieldErrors = make(map[Field]string, len(w.state.FieldErrors))
	for k, v := range w.state.FieldErrors {
		st.FieldErrors[k] = v
	}
	if !st.Open {
		st.Step = StepNone
	}
	return st
}

// failureMessage maps an API failure to the step-local banner text.
func failureMessage(err error) string {
	if authapi.IsTransport(err) {
		return MsgNetworkFailure
	}
	if msg := authapi.ServerMessage(err); msg != "" {
		return msg
	}
	return MsgGenericFailure
}

func normalizeGender(g string) string {
	for _, ok := range Genders {
		if strings.EqualFold(g, ok) {
			return ok
		}
	}
	return g
}
