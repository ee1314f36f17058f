package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("user-1", model.RoleTeacher, "campusattend", "secret", time.Hour, 24*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := Parse(pair.AccessToken, "secret", "campusattend")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, model.RoleTeacher, claims.Role)
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue("user-1", model.RoleStudent, "campusattend", "secret", time.Hour, 24*time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "other-secret", "campusattend")
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	pair, err := Issue("user-1", model.RoleStudent, "someone-else", "secret", time.Hour, 24*time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "secret", "campusattend")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue("user-1", model.RoleStudent, "campusattend", "secret", -time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "secret", "campusattend")
	assert.Error(t, err)
}
