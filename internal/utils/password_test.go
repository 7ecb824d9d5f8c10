package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHashAndVerifyPassword 正确密码校验通过，错误密码不通过
func TestHashAndVerifyPassword(t *testing.T) {
	encoded, err := HashPassword("kiosk-admin-123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := VerifyPassword("kiosk-admin-123", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong-password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestHashPasswordUsesRandomSalt 同一密码两次哈希结果不同
func TestHashPasswordUsesRandomSalt(t *testing.T) {
	first, err := HashPassword("same-password")
	require.NoError(t, err)
	second, err := HashPassword("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	// 两个哈希都能校验通过
	ok, err := VerifyPassword("same-password", first)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = VerifyPassword("same-password", second)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestVerifyPasswordMalformedEncoding 非法编码串返回错误
func TestVerifyPasswordMalformedEncoding(t *testing.T) {
	cases := []string{
		"",
		"plain-text",
		"$argon2id$v=19$m=65536,t=1,p=4$onlysalt",
		"$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=99$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$!!!bad-base64$aGFzaA",
	}

	for _, encoded := range cases {
		_, err := VerifyPassword("password", encoded)
		assert.Error(t, err, "encoded=%q", encoded)
	}
}

// TestVerifyPasswordEmptyPassword 空密码也走正常校验流程
func TestVerifyPasswordEmptyPassword(t *testing.T) {
	encoded, err := HashPassword("")
	require.NoError(t, err)

	ok, err := VerifyPassword("", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("not-empty", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestGenerateSessionID 会话ID长度固定且互不相同
func TestGenerateSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		id, err := GenerateSessionID()
		require.NoError(t, err)
		assert.Len(t, id, 32)
		assert.False(t, seen[id], "duplicate session id")
		seen[id] = true
	}
}

// TestGenerateRandomString 指定长度生成
func TestGenerateRandomString(t *testing.T) {
	for _, length := range []int{8, 16, 64} {
		value, err := GenerateRandomString(length)
		require.NoError(t, err)
		assert.Len(t, value, length)
	}
}
