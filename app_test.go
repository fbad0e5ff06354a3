package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Credentials: Credentials{
			Username:      "alice",
			Password:      "hunter2",
			AccountNumber: "000123",
		},
		ProviderURL:    testProviderURL,
		VendorURL:      testVendorURL,
		OutputFile:     "-",
		CacheDirectory: "disable",
	}
}

// portalStub fakes both portals behind one handler and counts the calls
// each endpoint receives.
type portalStub struct {
	t *testing.T

	loginBody   string
	tokenBody   string
	initCookie  string
	meterBodies map[MeterType]string
	meterErrs   map[MeterType]error

	calls map[string]int
}

func newPortalStub(t *testing.T) *portalStub {
	return &portalStub{
		t:          t,
		loginBody:  `{"errors": []}`,
		tokenBody:  `{"access_token": "tok-12345"}`,
		initCookie: "JSESSIONID=deadbeef; Path=/",
		meterBodies: map[MeterType]string{
			MeterTypeWater:    `{"operationSuccess": false}`,
			MeterTypeElectric: `{"operationSuccess": false}`,
			MeterTypeGas:      `{"operationSuccess": false}`,
		},
		meterErrs: map[MeterType]error{},
		calls:     map[string]int{},
	}
}

func (p *portalStub) handle(req *http.Request) (*http.Response, error) {
	p.calls[req.URL.Path]++

	switch req.URL.Path {
	case "/utility/":
		resp := jsonResponse(http.StatusOK, "<html></html>")
		resp.Header.Add("Set-Cookie", "PHPSESSID=abc123; Path=/")
		return resp, nil
	case "/citizenlink/common/common/ajax/checkLoginCredentials.php":
		return jsonResponse(http.StatusOK, p.loginBody), nil
	case "/citizenlink/ubs/common/ajax/sensusFetchClientAuthorization.php":
		return jsonResponse(http.StatusOK, p.tokenBody), nil
	case "/init/init":
		resp := jsonResponse(http.StatusOK, `{}`)
		if p.initCookie != "" {
			resp.Header.Add("Set-Cookie", p.initCookie)
		}
		return resp, nil
	case "/account/details":
		if req.Method == http.MethodGet {
			return jsonResponse(http.StatusOK, `{"accountNumber": "000123"}`), nil
		}
		var payload struct {
			MeterTypeByValue MeterType `json:"meterTypeByValue"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			p.t.Fatalf("bad meter query body: %v", err)
		}
		if err := p.meterErrs[payload.MeterTypeByValue]; err != nil {
			return nil, err
		}
		return jsonResponse(http.StatusOK, p.meterBodies[payload.MeterTypeByValue]), nil
	}

	p.t.Fatalf("unhandled request %s", req.URL)
	return nil, nil
}

func (p *portalStub) newApp() *App {
	app, err := newAppWithTransport(testConfig(), testLogger(), &MockRoundTripper{Handler: p.handle})
	require.NoError(p.t, err)
	return app
}

func TestRunCollectsMetersAcrossTypes(t *testing.T) {
	stub := newPortalStub(t)
	stub.meterBodies[MeterTypeWater] = `{
		"operationSuccess": true,
		"deviceIdList": ["W1", "W2"],
		"devices": {
			"W1": {"address": {"line1": "123 Main St", "line2": "Apt 4"}},
			"W2": {"address": {"line1": "123 Main St", "line2": ""}}
		}
	}`
	stub.meterBodies[MeterTypeElectric] = `{"operationSuccess": true, "deviceIdList": [], "devices": {}}`
	stub.meterBodies[MeterTypeGas] = `{
		"operationSuccess": true,
		"deviceIdList": ["G1"],
		"devices": {"G1": {"address": {"line1": "9 Elm Ct"}}}
	}`

	list, err := stub.newApp().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []MeterRecord{
		{MeterID: "W1", MeterType: MeterTypeWater, MeterAddress: "123 Main St Apt 4"},
		{MeterID: "W2", MeterType: MeterTypeWater, MeterAddress: "123 Main St"},
		{MeterID: "G1", MeterType: MeterTypeGas, MeterAddress: "9 Elm Ct"},
	}, list.Meters)

	require.Equal(t, 3, stub.calls["/account/details"], "One query per meter type")
}

func TestRunHaltsOnRejectedLogin(t *testing.T) {
	stub := newPortalStub(t)
	stub.loginBody = `{"errors": ["bad login"]}`

	app := stub.newApp()
	list, err := app.Run(context.Background())
	require.ErrorIs(t, err, ErrLoginRejected)
	require.Nil(t, list)
	require.Equal(t, stateFailed, app.state)

	require.Zero(t, stub.calls["/citizenlink/ubs/common/ajax/sensusFetchClientAuthorization.php"], "No token call after a rejected login")
	require.Zero(t, stub.calls["/init/init"], "No vendor calls after a rejected login")
	require.Zero(t, stub.calls["/account/details"], "No meter queries after a rejected login")
}

func TestRunHaltsWithoutToken(t *testing.T) {
	stub := newPortalStub(t)
	stub.tokenBody = `{"error": "unavailable"}`

	list, err := stub.newApp().Run(context.Background())
	require.ErrorIs(t, err, ErrNoToken)
	require.Nil(t, list)
	require.Zero(t, stub.calls["/init/init"])
	require.Zero(t, stub.calls["/account/details"])
}

func TestRunHaltsWithoutVendorSession(t *testing.T) {
	stub := newPortalStub(t)
	stub.initCookie = ""

	list, err := stub.newApp().Run(context.Background())
	require.ErrorIs(t, err, ErrNoVendorSession)
	require.Nil(t, list)
	require.Zero(t, stub.calls["/account/details"])
}

func TestRunAbsorbsSingleTypeFailure(t *testing.T) {
	stub := newPortalStub(t)
	stub.meterErrs[MeterTypeWater] = errors.New("connection reset")
	stub.meterBodies[MeterTypeGas] = `{
		"operationSuccess": true,
		"deviceIdList": ["G1"],
		"devices": {"G1": {"address": {"line1": "9 Elm Ct"}}}
	}`

	app := stub.newApp()
	list, err := app.Run(context.Background())
	require.NoError(t, err, "A single type's failure never aborts the run")
	require.Equal(t, []MeterRecord{
		{MeterID: "G1", MeterType: MeterTypeGas, MeterAddress: "9 Elm Ct"},
	}, list.Meters)
	require.Equal(t, stateDone, app.state)
	require.Equal(t, 3, stub.calls["/account/details"], "Remaining types still queried")
}

func TestRunEmptyAccountYieldsEmptyList(t *testing.T) {
	stub := newPortalStub(t)

	list, err := stub.newApp().Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, list.Meters, "Empty runs still emit a meters array")
	require.Empty(t, list.Meters)
}
