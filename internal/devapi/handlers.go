package devapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"

	"pickup-portal/client/internal/authapi"
	"pickup-portal/client/internal/logging"
	sessiondomain "pickup-portal/client/internal/session/domain"
	userdomain "pickup-portal/client/internal/user/domain"
)

const dobLayout = "2006-01-02"

var errIncompleteProfile = errors.New("complete your profile before adding an address")

type loginRequest struct {
	MobileNumber string `json:"mobileNumber"`
}

type verifyRequest struct {
	MobileNumber string `json:"mobileNumber"`
	OTP          string `json:"otp"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mobile := strings.TrimSpace(req.MobileNumber)
	if !digits(mobile, 10) {
		respondError(w, http.StatusBadRequest, "Enter a valid 10-digit mobile number")
		return
	}
	c := s.customers.register(mobile)
	if _, err := s.otps.Issue(mobile); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("devapi: generate otp")
		respondError(w, http.StatusInternalServerError, "could not send OTP")
		return
	}
	s.metrics.otpIssued.Inc()
	hlog.FromRequest(r).Info().Str("phone", logging.MaskPhone(mobile)).Msg("devapi: otp issued")
	respondItems(w, authapi.StatusResult{Status: c.Status})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mobile := strings.TrimSpace(req.MobileNumber)
	otp := strings.TrimSpace(req.OTP)
	if !digits(mobile, 10) || !digits(otp, 6) {
		respondError(w, http.StatusBadRequest, "Enter the 6-digit OTP sent to your mobile number")
		return
	}
	if err := s.otps.Verify(mobile, otp); err != nil {
		result := "mismatch"
		if errors.Is(err, ErrOTPExpired) {
			result = "expired"
		} else if errors.Is(err, ErrOTPNotFound) {
			result = "missing"
		}
		s.metrics.otpVerify.WithLabelValues(result).Inc()
		respondError(w, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}
	c, ok := s.customers.byMobileNumber(mobile)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}
	c, err := s.customers.update(c.ID, func(c *Customer) error {
		if c.Status == userdomain.StatusInitiated {
			c.Status = userdomain.StatusVerified
		}
		return nil
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}
	access, refresh, err := s.issueTokens(w, c.ID, uuid.NewString())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("devapi: issue tokens")
		respondError(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}
	s.metrics.otpVerify.WithLabelValues("ok").Inc()
	respondItems(w, authapi.VerifyResult{AccessToken: access, RefreshToken: refresh, Profile: c.Profile()})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req authapi.ProfileUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	dob := strings.TrimSpace(req.DOB)
	gender := strings.ToLower(strings.TrimSpace(req.Gender))
	if name == "" {
		respondError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if d, err := time.Parse(dobLayout, dob); err != nil || d.After(s.now().UTC()) {
		respondError(w, http.StatusBadRequest, "Enter a valid date of birth")
		return
	}
	switch gender {
	case "male", "female", "other":
	default:
		respondError(w, http.StatusBadRequest, "Select a gender")
		return
	}
	c, err := s.customers.update(customerID(r.Context()), func(c *Customer) error {
		c.Name, c.DOB, c.Gender = name, dob, gender
		if c.Status == userdomain.StatusInitiated || c.Status == userdomain.StatusVerified {
			c.Status = userdomain.StatusStep1
		}
		return nil
	})
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unknown customer")
		return
	}
	s.metrics.profileUpdates.WithLabelValues("profile").Inc()
	respondItems(w, authapi.StatusResult{Status: c.Status})
}

func (s *Server) handleUpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req authapi.AddressUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, f := range []struct{ v, msg string }{
		{req.BaseAddress, "Address is required"},
		{req.PostOfficeName, "Post office is required"},
		{req.City, "City is required"},
	} {
		if strings.TrimSpace(f.v) == "" {
			respondError(w, http.StatusBadRequest, f.msg)
			return
		}
	}
	if !digits(strings.TrimSpace(req.Pincode), 6) {
		respondError(w, http.StatusBadRequest, "Enter a valid 6-digit pincode")
		return
	}
	c, err := s.customers.update(customerID(r.Context()), func(c *Customer) error {
		if c.Status != userdomain.StatusStep1 && c.Status != userdomain.StatusCompleted {
			return errIncompleteProfile
		}
		c.BaseAddress = strings.TrimSpace(req.BaseAddress)
		c.PostOfficeName = strings.TrimSpace(req.PostOfficeName)
		c.Pincode = strings.TrimSpace(req.Pincode)
		c.City = strings.TrimSpace(req.City)
		c.District = strings.TrimSpace(req.District)
		c.State = strings.TrimSpace(req.State)
		c.Status = userdomain.StatusCompleted
		return nil
	})
	switch {
	case errors.Is(err, errIncompleteProfile):
		respondError(w, http.StatusConflict, "Complete your profile before adding an address")
		return
	case err != nil:
		respondError(w, http.StatusUnauthorized, "unknown customer")
		return
	}
	s.metrics.profileUpdates.WithLabelValues("address").Inc()
	respondItems(w, authapi.StatusResult{Status: c.Status})
}

// handleRefresh rotates the refresh cookie. Its data is an object, not an array.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ck, err := r.Cookie(sessiondomain.CookieRefreshToken)
	if err != nil || ck.Value == "" {
		s.metrics.refreshes.WithLabelValues("missing").Inc()
		respondError(w, http.StatusUnauthorized, "refresh token required")
		return
	}
	id, family, jti, err := s.tokens.ValidateRefresh(ck.Value)
	if err != nil {
		s.metrics.refreshes.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	rec, err := s.customers.consumeRefresh(jti, ck.Value, s.now())
	if err != nil {
		result := "invalid"
		if errors.Is(err, ErrRefreshReused) {
			result = "reused"
			hlog.FromRequest(r).Warn().Str("family", family).Msg("devapi: refresh token reuse, family revoked")
		}
		s.metrics.refreshes.WithLabelValues(result).Inc()
		respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if rec.customerID != id {
		s.metrics.refreshes.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if _, ok := s.customers.get(id); !ok {
		s.metrics.refreshes.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusUnauthorized, "unknown customer")
		return
	}
	access, refresh, err := s.issueTokens(w, id, rec.family)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("devapi: issue tokens")
		respondError(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}
	s.metrics.refreshes.WithLabelValues("ok").Inc()
	respondJSON(w, http.StatusOK, envelope{Status: true, Data: authapi.RefreshResult{AccessToken: access, RefreshToken: refresh}})
}

func (s *Server) handleDevOTP(w http.ResponseWriter, r *http.Request) {
	mobile := strings.TrimSpace(r.URL.Query().Get("mobileNumber"))
	if mobile == "" {
		respondError(w, http.StatusBadRequest, "mobileNumber is required")
		return
	}
	otp, ok := s.otps.Peek(mobile)
	if !ok {
		respondError(w, http.StatusNotFound, "OTP not found or expired")
		return
	}
	respondItems(w, map[string]string{"otp": otp, "note": "DEV MODE ONLY"})
}

// issueTokens mints an access token and a refresh token in family, records the refresh
// token hash and sets the refresh cookie.
func (s *Server) issueTokens(w http.ResponseWriter, customerID, family string) (string, string, error) {
	access, _, err := s.tokens.IssueAccess(customerID)
	if err != nil {
		return "", "", err
	}
	refresh, jti, expiresAt, err := s.tokens.IssueRefresh(customerID, family)
	if err != nil {
		return "", "", err
	}
	s.customers.saveRefresh(jti, customerID, family, refresh, expiresAt)
	http.SetCookie(w, &http.Cookie{
		Name:     sessiondomain.CookieRefreshToken,
		Value:    refresh,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return access, refresh, nil
}

func digits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
