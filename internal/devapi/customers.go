package devapi

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"pickup-portal/client/internal/security"
	userdomain "pickup-portal/client/internal/user/domain"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrRefreshUnknown   = errors.New("refresh token unknown")
	ErrRefreshReused    = errors.New("refresh token reused")
)

// Customer is a registered mobile number and whatever profile it has supplied so far.
type Customer struct {
	ID             string
	Mobile         string
	Name           string
	DOB            string
	Gender         string
	BaseAddress    string
	PostOfficeName string
	Pincode        string
	City           string
	District       string
	State          string
	Status         userdomain.Status
}

// Profile is the client-facing view of c.
func (c Customer) Profile() userdomain.Profile {
	return userdomain.Profile{
		Name:        c.Name,
		PhoneNumber: c.Mobile,
		Gender:      c.Gender,
		DOB:         c.DOB,
		BaseAddress: c.BaseAddress,
		Pincode:     c.Pincode,
		Status:      c.Status,
	}
}

type refreshRecord struct {
	customerID string
	family     string
	hash       string
	expiresAt  time.Time
	used       bool
}

// customerStore holds customers and refresh token records in memory.
type customerStore struct {
	mu       sync.Mutex
	byID     map[string]*Customer
	byMobile map[string]string
	refresh  map[string]*refreshRecord
}

func newCustomerStore() *customerStore {
	return &customerStore{
		byID:     make(map[string]*Customer),
		byMobile: make(map[string]string),
		refresh:  make(map[string]*refreshRecord),
	}
}

// register returns the customer for mobile, creating it as INITIATED on first sight.
func (s *customerStore) register(mobile string) Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byMobile[mobile]; ok {
		return *s.byID[id]
	}
	c := &Customer{ID: uuid.NewString(), Mobile: mobile, Status: userdomain.StatusInitiated}
	s.byID[c.ID] = c
	s.byMobile[mobile] = c.ID
	return *c
}

func (s *customerStore) byMobileNumber(mobile string) (Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byMobile[mobile]
	if !ok {
		return Customer{}, false
	}
	return *s.byID[id], true
}

func (s *customerStore) get(id string) (Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return Customer{}, false
	}
	return *c, true
}

// update applies fn to the stored customer under the lock. fn returning an error leaves it unchanged.
func (s *customerStore) update(id string, fn func(*Customer) error) (Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	next := *c
	if err := fn(&next); err != nil {
		return Customer{}, err
	}
	*c = next
	return next, nil
}

func (s *customerStore) saveRefresh(jti, customerID, family, token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[jti] = &refreshRecord{
		customerID: customerID,
		family:     family,
		hash:       security.HashSecret(token),
		expiresAt:  expiresAt,
	}
}

// consumeRefresh marks the token jti as used. Presenting an already used token revokes its whole family.
func (s *customerStore) consumeRefresh(jti, token string, now time.Time) (*refreshRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[jti]
	if !ok || !security.SecretMatches(token, rec.hash) || !rec.expiresAt.After(now) {
		return nil, ErrRefreshUnknown
	}
	if rec.used {
		for k, r := range s.refresh {
			if r.family == rec.family {
				delete(s.refresh, k)
			}
		}
		return nil, ErrRefreshReused
	}
	rec.used = true
	out := *rec
	return &out, nil
}
