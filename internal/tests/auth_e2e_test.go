package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMobile   = "9990001111"
	testPassword = "pw123"
)

type userPayload struct {
	ID           string `json:"id"`
	MobileNumber string `json:"mobileNumber"`
}

type registerPayload struct {
	Message string      `json:"message"`
	User    userPayload `json:"user"`
}

type loginPayload struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         userPayload `json:"user"`
}

type refreshPayload struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func postJSON(t *testing.T, client *http.Client, url string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := client.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

// TestAuthE2E walks the full lifecycle over HTTP: register, login with
// the delivered code, hit a protected route, rotate the refresh token,
// detect replay, and revoke everything.
func TestAuthE2E(t *testing.T) {
	ts := newTestServer(t)
	client := ts.Server.Client()
	baseURL := ts.BaseURL()

	t.Run("A_Health", func(t *testing.T) {
		resp, err := client.Get(baseURL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	var userID string
	t.Run("B_Register", func(t *testing.T) {
		resp, body := postJSON(t, client, baseURL+"/auth/register", map[string]string{
			"mobileNumber": testMobile,
			"password":     testPassword,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

		var res registerPayload
		require.NoError(t, json.Unmarshal(body, &res))
		assert.Equal(t, testMobile, res.User.MobileNumber)
		require.NotEmpty(t, res.User.ID)
		userID = res.User.ID

		assert.Equal(t, 1, ts.Sender.Sent(), "delivery channel called exactly once")
		require.Len(t, ts.Sender.LastCode(), 4)
		assert.NotContains(t, string(body), ts.Sender.LastCode(), "the OTP must never appear in the response")
	})

	t.Run("B2_RegisterValidation", func(t *testing.T) {
		resp, _ := postJSON(t, client, baseURL+"/auth/register", map[string]string{"mobileNumber": testMobile})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("C_LoginWrongOTP", func(t *testing.T) {
		resp, _ := postJSON(t, client, baseURL+"/auth/login", map[string]string{
			"mobileNumber": testMobile,
			"otp":          "0000",
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("C2_LoginUnknownUser", func(t *testing.T) {
		resp, _ := postJSON(t, client, baseURL+"/auth/login", map[string]string{
			"mobileNumber": "1112223333",
			"otp":          "0000",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	var tokens loginPayload
	t.Run("D_Login", func(t *testing.T) {
		resp, body := postJSON(t, client, baseURL+"/auth/login", map[string]string{
			"mobileNumber": testMobile,
			"otp":          ts.Sender.LastCode(),
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
		require.NoError(t, json.Unmarshal(body, &tokens))
		assert.NotEmpty(t, tokens.AccessToken)
		assert.NotEmpty(t, tokens.RefreshToken)
		assert.Equal(t, userID, tokens.User.ID)
	})

	t.Run("D2_OTPNotReusable", func(t *testing.T) {
		resp, _ := postJSON(t, client, baseURL+"/auth/login", map[string]string{
			"mobileNumber": testMobile,
			"otp":          ts.Sender.LastCode(),
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, "a consumed code must not log in twice")
	})

	t.Run("E_Me", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, baseURL+"/me", nil)
		req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var me userPayload
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
		assert.Equal(t, testMobile, me.MobileNumber)

		reqNoAuth, _ := http.NewRequest(http.MethodGet, baseURL+"/me", nil)
		respNoAuth, err := client.Do(reqNoAuth)
		require.NoError(t, err)
		respNoAuth.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, respNoAuth.StatusCode)
	})

	var rotated refreshPayload
	t.Run("F_Refresh", func(t *testing.T) {
		resp, body := postJSON(t, client, baseURL+"/auth/refresh", map[string]string{
			"refreshToken": tokens.RefreshToken,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
		require.NoError(t, json.Unmarshal(body, &rotated))
		assert.NotEmpty(t, rotated.RefreshToken)
		assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
	})

	t.Run("G_ReplayRejected", func(t *testing.T) {
		resp, _ := postJSON(t, client, baseURL+"/auth/refresh", map[string]string{
			"refreshToken": tokens.RefreshToken,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "a consumed refresh token must be dead")
	})

	t.Run("H_RevokeAll", func(t *testing.T) {
		resp, body := postJSON(t, client, baseURL+"/auth/revoke", map[string]string{"userId": userID})
		require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

		// idempotent
		resp2, _ := postJSON(t, client, baseURL+"/auth/revoke", map[string]string{"userId": userID})
		assert.Equal(t, http.StatusOK, resp2.StatusCode)

		// the rotated token is dead too now
		resp3, _ := postJSON(t, client, baseURL+"/auth/refresh", map[string]string{
			"refreshToken": rotated.RefreshToken,
		})
		assert.Equal(t, http.StatusUnauthorized, resp3.StatusCode)
	})

	t.Run("H2_RevokeValidation", func(t *testing.T) {
		resp, _ := postJSON(t, client, baseURL+"/auth/revoke", map[string]string{"userId": "not-a-uuid"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
