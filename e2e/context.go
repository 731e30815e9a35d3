package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestContext drives a running tokencore server over HTTP. Tokens are signed
// with the server's shared key, one per (caller, role) pair.
type TestContext struct {
	BaseURL    string
	SigningKey string
	Issuer     string
	Audience   string
	// RunID makes addresses unique per scenario so scenarios can share a
	// long-lived server.
	RunID uint32

	client     *http.Client
	lastStatus int
	lastBody   []byte
}

func NewTestContext(baseURL, signingKey string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		SigningKey: signingKey,
		Issuer:     "tokencore",
		Audience:   "tokencore-api",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears the last response between scenarios.
func (tc *TestContext) Reset(runID uint32) {
	tc.RunID = runID
	tc.lastStatus = 0
	tc.lastBody = nil
}

func (tc *TestContext) token(caller, role string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  caller,
		"role": role,
		"iss":  tc.Issuer,
		"aud":  []string{tc.Audience},
		"iat":  now.Unix(),
		"exp":  now.Add(5 * time.Minute).Unix(),
		"jti":  fmt.Sprintf("e2e-%d-%d", tc.RunID, now.UnixNano()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tc.SigningKey))
}

// Do sends a JSON request as caller with role.
func (tc *TestContext) Do(method, path, caller, role string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	token, err := tc.token(caller, role)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q missing from response %s", field, tc.lastBody)
	}
	return v, nil
}

// Address derives a per-scenario address from a name.
func (tc *TestContext) Address(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return fmt.Sprintf("0x%08x%08x%024x", tc.RunID, h.Sum32(), 1)
}

// ID scopes a numeric identifier (delegate, audit scope, user) to the
// current scenario.
func (tc *TestContext) ID(n int) uint64 {
	return uint64(tc.RunID)<<16 | uint64(n)
}
