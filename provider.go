package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Protocol constants the CitizenLink endpoints require in every form
// body. These are contract details of the portal, not tunables.
const (
	siteName        = "UTILITY"
	sessionTimeout  = "60"
	linkAccountFlag = "0"
	accessLevelCode = "11"
	loginWidgetName = "INITIAL"
)

// requestTimeout bounds every HTTP exchange with either portal.
const requestTimeout = 15 * time.Second

var (
	// ErrLoginRejected means the provider refused the credentials, or
	// answered the login check with something other than a clean empty
	// errors list.
	ErrLoginRejected = errors.New("provider rejected login credentials")

	// ErrNoToken means the provider answered the authorization call
	// without an access token.
	ErrNoToken = errors.New("provider response carried no access token")
)

// ProviderService talks to the utility provider's CitizenLink backend.
// The client must carry a cookie jar: the provider's PHP session
// cookies are the only thing authorizing the later token fetch.
type ProviderService struct {
	BaseURL string
	Client  *http.Client
	Logger  *logrus.Logger
}

func NewProviderService(baseURL string, client *http.Client, logger *logrus.Logger) *ProviderService {
	return &ProviderService{
		BaseURL: baseURL,
		Client:  client,
		Logger:  logger,
	}
}

// Bootstrap opens an anonymous session with the provider so the jar
// picks up the baseline cookies (PHPSESSID, UTILITY). The body is
// ignored; only the Set-Cookie side effect matters.
func (s *ProviderService) Bootstrap(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/utility/", nil)
	if err != nil {
		return fmt.Errorf("building bootstrap request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("bootstrapping provider session: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	s.Logger.WithField("cookies", len(resp.Cookies())).Debug("Provider session established")
	return nil
}

// Authenticate submits the account credentials to the provider's login
// check. The portal signals acceptance with an empty errors list; any
// other shape, including a non-JSON body, is a rejection.
func (s *ProviderService) Authenticate(ctx context.Context, creds Credentials) error {
	form := url.Values{
		"loginId":     {creds.Username},
		"passId":      {creds.Password},
		"SITENAME":    {siteName},
		"timeout":     {sessionTimeout},
		"linkAccount": {linkAccountFlag},
		"accessLevel": {accessLevelCode},
		"widgetName":  {loginWidgetName},
	}

	body, err := s.postForm(ctx, s.BaseURL+"/citizenlink/common/common/ajax/checkLoginCredentials.php", form)
	if err != nil {
		return fmt.Errorf("submitting login credentials: %w", err)
	}

	var reply struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		s.Logger.WithError(err).Debug("Login response was not JSON")
		return ErrLoginRejected
	}
	if reply.Errors == nil || len(reply.Errors) > 0 {
		return ErrLoginRejected
	}
	return nil
}

// FetchAccessToken asks the provider for the SSO token the analytics
// vendor accepts. No credentials go over the wire here; the session
// cookies from Authenticate carry the authorization.
func (s *ProviderService) FetchAccessToken(ctx context.Context) (string, error) {
	form := url.Values{
		"SITENAME":    {siteName},
		"timeout":     {sessionTimeout},
		"linkAccount": {linkAccountFlag},
	}

	body, err := s.postForm(ctx, s.BaseURL+"/citizenlink/ubs/common/ajax/sensusFetchClientAuthorization.php", form)
	if err != nil {
		return "", fmt.Errorf("fetching client authorization: %w", err)
	}

	var reply struct {
		AccessToken *string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &reply); err != nil || reply.AccessToken == nil || *reply.AccessToken == "" {
		return "", ErrNoToken
	}
	return *reply.AccessToken, nil
}

func (s *ProviderService) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
