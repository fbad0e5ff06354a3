package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// vendorSessionCookie is the cookie the analytics portal sets once the
// SSO token has been accepted; without it every query comes back empty.
const vendorSessionCookie = "JSESSIONID"

// ErrNoVendorSession means the vendor's init call did not mint a
// session cookie, usually because the token was not accepted.
var ErrNoVendorSession = errors.New("vendor did not issue a session cookie")

// VendorService talks to the Sensus analytics portal holding the actual
// meter inventory. It shares the provider's cookie jar, so the session
// cookie minted by InitSession rides along on every later call.
type VendorService struct {
	BaseURL string
	Client  *http.Client
	Logger  *logrus.Logger
}

func NewVendorService(baseURL string, client *http.Client, logger *logrus.Logger) *VendorService {
	return &VendorService{
		BaseURL: baseURL,
		Client:  client,
		Logger:  logger,
	}
}

// InitSession presents the provider-issued token to the vendor and
// checks that a session cookie came back. The cookie itself is retained
// by the shared jar.
func (s *VendorService) InitSession(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/init/init?sso_auth=%s", s.BaseURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return fmt.Errorf("building vendor init request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json, charset=UTF-8")
	req.Header.Set("Accept", "application/json, text/javascript, */*")
	req.Header.Set("Origin", s.BaseURL)

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("initializing vendor session: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	for _, c := range resp.Cookies() {
		if c.Name == vendorSessionCookie {
			s.Logger.Debug("Vendor session cookie received")
			return nil
		}
	}
	return ErrNoVendorSession
}

type meterQueryResponse struct {
	OperationSuccess json.RawMessage `json:"operationSuccess"`
	DeviceIDList     []string        `json:"deviceIdList"`
	Devices          map[string]struct {
		Address struct {
			Line1 string `json:"line1"`
			Line2 string `json:"line2"`
		} `json:"address"`
	} `json:"devices"`
}

// MetersByType lists the meters of one type on the account. Both a
// vendor-reported failure and a genuinely empty listing come back as
// (nil, nil): the portal does not distinguish them, so neither do we.
func (s *VendorService) MetersByType(ctx context.Context, token, accountNumber string, meterType MeterType) ([]MeterRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, err := json.Marshal(struct {
		AccountNumber    string `json:"accountNumber"`
		MeterTypeByValue string `json:"meterTypeByValue"`
	}{accountNumber, string(meterType)})
	if err != nil {
		return nil, fmt.Errorf("encoding %s meter query: %w", meterType, err)
	}

	endpoint := fmt.Sprintf("%s/account/details?sso_auth=%s", s.BaseURL, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building %s meter query: %w", meterType, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Origin", s.BaseURL)
	req.Header.Set("Referer", fmt.Sprintf("%s/main.html?sso_auth=%s", s.BaseURL, url.QueryEscape(token)))
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying %s meters: %w", meterType, err)
	}
	defer resp.Body.Close()

	var reply meterQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decoding %s meter response: %w", meterType, err)
	}

	// operationSuccess must be the boolean true, not merely truthy.
	var ok bool
	if json.Unmarshal(reply.OperationSuccess, &ok) != nil || !ok {
		s.Logger.WithField("meterType", meterType).Debug("Vendor did not report a successful operation")
		return nil, nil
	}

	var meters []MeterRecord
	for _, id := range reply.DeviceIDList {
		addr := reply.Devices[id].Address
		address := addr.Line1
		if addr.Line2 != "" {
			address += " " + addr.Line2
		}
		meters = append(meters, MeterRecord{
			MeterID:      id,
			MeterType:    meterType,
			MeterAddress: address,
		})
	}
	return meters, nil
}

// AccountDetails pulls the raw account document the portal renders its
// dashboard from. Diagnostic only; callers ignore failures.
func (s *VendorService) AccountDetails(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/account/details", nil)
	if err != nil {
		return nil, fmt.Errorf("building account details request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/javascript, */*")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching account details: %w", err)
	}
	defer resp.Body.Close()

	var details map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("decoding account details: %w", err)
	}
	if len(details) == 0 {
		return nil, nil
	}
	return details, nil
}
