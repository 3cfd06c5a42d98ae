package capital

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
)

type sessionRequest struct {
	Identifier        string `json:"identifier"`
	Password          string `json:"password"`
	EncryptedPassword bool   `json:"encryptedPassword"`
}

type sessionResponse struct {
	CurrentAccountID string `json:"currentAccountId"`
	AccountType      string `json:"accountType"`
}

type pingResponse struct {
	Status string `json:"status"`
}

// CreateSession exchanges credentials for CST / X-SECURITY-TOKEN session tokens.
// Every failure is an *interfaces.AuthError.
func (c *Client) CreateSession(ctx context.Context, creds models.Credentials, env models.Environment) (*models.Session, error) {
	if creds.APIKey == "" || creds.Identifier == "" || creds.Password == "" {
		return nil, &interfaces.AuthError{Op: "create session", Err: errors.New("missing credentials")}
	}

	header := http.Header{}
	header.Set(headerAPIKey, creds.APIKey)

	respHeader, data, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/session",
		body: sessionRequest{
			Identifier: creds.Identifier,
			Password:   creds.Password,
		},
		header: header,
		env:    env,
	})
	if err != nil {
		return nil, &interfaces.AuthError{Op: "create session", Err: err}
	}

	sess := &models.Session{
		CST:           respHeader.Get(headerCST),
		SecurityToken: respHeader.Get(headerSecurityToken),
		Environment:   env,
		CreatedAt:     c.now(),
	}
	if !sess.Valid() {
		return nil, &interfaces.AuthError{Op: "create session", Err: errors.New("response carried no session tokens")}
	}

	var body sessionResponse
	if len(data) > 0 && json.Unmarshal(data, &body) == nil {
		sess.AccountID = body.CurrentAccountID
	}

	c.logger.Info().
		Str("environment", env.String()).
		Str("account", sess.AccountID).
		Msg("Capital session created")

	return sess, nil
}

// KeepAlive pings the API to stop an idle session from expiring.
// A rejected session is reported as ErrSessionExpired; anything else as an *interfaces.AuthError.
func (c *Client) KeepAlive(ctx context.Context, sess *models.Session) error {
	var resp pingResponse
	if err := c.get(ctx, sess, "/ping", nil, &resp); err != nil {
		if errors.Is(err, interfaces.ErrSessionExpired) {
			return err
		}
		return &interfaces.AuthError{Op: "keep-alive", Err: err}
	}
	c.logger.Debug().Str("status", resp.Status).Msg("Capital session keep-alive")
	return nil
}
