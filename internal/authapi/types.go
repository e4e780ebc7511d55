package authapi

import (
	userdomain "pickup-portal/client/internal/user/domain"
)

// ProfileUpdate is the body of PUT /customer/update-profile.
type ProfileUpdate struct {
	Name   string `json:"name"`
	DOB    string `json:"dob"`
	Gender string `json:"gender"`
}

// AddressUpdate is the body of PUT /customer/update-address.
type AddressUpdate struct {
	BaseAddress    string `json:"baseAddress"`
	PostOfficeName string `json:"postOfficeName"`
	Pincode        string `json:"pincode"`
	City           string `json:"city"`
	District       string `json:"district"`
	State          string `json:"state"`
}

// StatusResult is the data item returned by login, update-profile and update-address.
type StatusResult struct {
	Status userdomain.Status `json:"status"`
}

// VerifyResult is the data item returned by verify-otp. Profile fields the server
// includes are decoded into the embedded Profile.
type VerifyResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	userdomain.Profile
}

// RefreshResult is the data object returned by refresh. RefreshToken is set only on rotation.
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type sendOTPRequest struct {
	MobileNumber string `json:"mobileNumber"`
}

type verifyOTPRequest struct {
	MobileNumber string `json:"mobileNumber"`
	OTP          string `json:"otp"`
}
