package client

import (
	"context"

	"github.com/cubbyfs/cubby/pkg/protocol"
)

// CreateAccount registers a new user and returns the server-assigned id.
// The session stays unauthenticated; follow with Login.
func (c *Client) CreateAccount(ctx context.Context, username, password, email string) (string, error) {
	resp, err := c.request(ctx, protocol.CreateAccountRequest, &protocol.CreateAccountPayload{
		Username: username,
		Password: password,
		Email:    email,
	})
	if err != nil {
		return "", err
	}

	var result protocol.CreateAccountResultPayload
	if err := protocol.UnmarshalPayload(resp.Payload, &result); err != nil {
		return "", err
	}
	return result.UserID, nil
}

// Login authenticates the connection. On success the client remembers the
// user id and stamps it on subsequent requests.
func (c *Client) Login(ctx context.Context, username, password string) error {
	resp, err := c.request(ctx, protocol.LoginRequest, &protocol.LoginPayload{
		Username: username,
		Password: password,
	})
	if err != nil {
		return err
	}

	c.setUserID(resp.UserID)
	return nil
}

// Logout ends the session. The server closes the connection afterwards, so
// the client closes its side too.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.request(ctx, protocol.LogoutRequest, nil)
	c.setUserID("")
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}
