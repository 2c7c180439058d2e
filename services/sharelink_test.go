package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/sharebox/models"
)

var urlSafeCode = regexp.MustCompile(`^[A-Za-z0-9]{8}$`)

func TestRandomCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := randomCode(8)
		require.NoError(t, err)
		assert.Regexp(t, urlSafeCode, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 195)
}

func TestIssueResolve(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.user(t, "a@example.com", models.RoleUser, 100*mb)
	up := f.upload(t, u.ID, "a.txt", "text/plain", []byte("hello"))

	assert.Regexp(t, urlSafeCode, up.Link.ShareCode)

	fileID, err := f.links.Resolve(ctx, up.Link.ShareCode)
	require.NoError(t, err)
	assert.Equal(t, up.File.ID, fileID)

	second, err := f.links.Issue(ctx, up.File.ID)
	require.NoError(t, err)
	assert.NotEqual(t, up.Link.ShareCode, second.ShareCode)
	assert.NotEqual(t, up.Link.LinkID, second.LinkID)

	fileID, err = f.links.Resolve(ctx, second.ShareCode)
	require.NoError(t, err)
	assert.Equal(t, up.File.ID, fileID)
}

func TestResolve_Unknown(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.links.Resolve(context.Background(), "NoSuchCd")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.links.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_CaseSensitive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.user(t, "a@example.com", models.RoleUser, 100*mb)
	up := f.upload(t, u.ID, "a.txt", "text/plain", []byte("hello"))

	require.NoError(t, f.db.Create(&models.ShareLink{ID: "link-lower", FileID: up.File.ID, ShareCode: "abcdefgh"}).Error)

	_, err := f.links.Resolve(ctx, "ABCDEFGH")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.links.Resolve(ctx, "Abcdefgh")
	assert.ErrorIs(t, err, ErrNotFound)

	// case variants are distinct codes, not collisions
	require.NoError(t, f.db.Create(&models.ShareLink{ID: "link-upper", FileID: up.File.ID, ShareCode: "ABCDEFGH"}).Error)
	fileID, err := f.links.Resolve(ctx, "ABCDEFGH")
	require.NoError(t, err)
	assert.Equal(t, up.File.ID, fileID)
}

func TestIssue_RetriesOnCollision(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.user(t, "a@example.com", models.RoleUser, 100*mb)
	up := f.upload(t, u.ID, "a.txt", "text/plain", []byte("hello"))

	taken := up.Link.ShareCode
	codes := []string{taken, taken, "Fresh123"}
	calls := 0
	f.links.newCode = func(int) (string, error) {
		c := codes[calls]
		calls++
		return c, nil
	}

	link, err := f.links.Issue(ctx, up.File.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fresh123", link.ShareCode)
	assert.Equal(t, 3, calls)
}

func TestIssue_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.user(t, "a@example.com", models.RoleUser, 100*mb)
	up := f.upload(t, u.ID, "a.txt", "text/plain", []byte("hello"))

	calls := 0
	f.links.newCode = func(int) (string, error) {
		calls++
		return up.Link.ShareCode, nil
	}

	_, err := f.links.Issue(ctx, up.File.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
	assert.Equal(t, 5, calls)
}

func TestIssue_UnknownFile(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.links.Issue(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}
