package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/evstation/core/clock"
	"github.com/kilianp07/evstation/core/model"
)

func TestIssueAndParse(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	s, err := NewService("s3cret", time.Hour, clk)
	require.NoError(t, err)

	raw, exp, err := s.Issue(model.User{ID: "u1", Username: "alice", Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(time.Hour), exp)

	claims, err := s.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, model.RoleAdmin, claims.Role)

	clk.Advance(2 * time.Hour)
	_, err = s.Parse(raw)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseRejectsForeignTokens(t *testing.T) {
	s, err := NewService("s3cret", 0, nil)
	require.NoError(t, err)
	other, err := NewService("other", 0, nil)
	require.NoError(t, err)

	raw, _, err := other.Issue(model.User{ID: "u1"})
	require.NoError(t, err)
	_, err = s.Parse(raw)
	assert.Error(t, err)

	_, err = s.Parse("not-a-token")
	assert.Error(t, err)

	_, _, err = s.Issue(model.User{})
	assert.Error(t, err)
}

func TestNewServiceNeedsSecret(t *testing.T) {
	_, err := NewService("", time.Hour, nil)
	assert.Error(t, err)
}
