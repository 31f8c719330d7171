package registry

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConn struct {
	name string
}

func newTestRegistry(t *testing.T, opts Options) (*Registry[*testConn], *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	opts.Clock = mock
	reg := New[*testConn](opts)
	t.Cleanup(reg.Close)
	return reg, mock
}

var codePattern = regexp.MustCompile(`^\d{6}$`)

func TestCreateRoomCodeFormatAndUniqueness(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})

	seen := make(map[string]bool)
	for range 500 {
		code, sessionID, err := reg.CreateRoom()
		require.NoError(t, err)
		assert.Regexp(t, codePattern, code)
		assert.Len(t, sessionID, 32)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.Equal(t, 500, reg.Len())
}

func TestCreateRoomExhaustsShrunkCodeSpace(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{CodeSpace: 1})

	code, _, err := reg.CreateRoom()
	require.NoError(t, err)
	assert.Equal(t, "000000", code)

	_, _, err = reg.CreateRoom()
	assert.ErrorIs(t, err, ErrCodeExhausted)
	assert.Equal(t, 1, reg.Len())
}

func TestCreateRoomSetsExpiry(t *testing.T) {
	reg, mock := newTestRegistry(t, Options{})

	code, _, err := reg.CreateRoom()
	require.NoError(t, err)

	room, err := reg.Lookup(code)
	require.NoError(t, err)
	assert.Equal(t, mock.Now(), room.CreatedAt)
	assert.Equal(t, mock.Now().Add(DefaultTTL), room.ExpiresAt)
	assert.Equal(t, StateEmpty, room.State())
}

func TestOpenBindsCreator(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	a := &testConn{name: "a"}

	room, err := reg.Open(a)
	require.NoError(t, err)
	assert.Equal(t, StateWaitingForPeer, room.State())
	assert.True(t, room.HasPeerA())
	assert.False(t, room.HasPeerB())

	code, role, ok := reg.Binding(a)
	require.True(t, ok)
	assert.Equal(t, room.Code, code)
	assert.Equal(t, RoleA, role)

	_, err = reg.Open(a)
	assert.ErrorIs(t, err, ErrAlreadyBound)
}

func TestLookupUnknownCode(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})

	_, err := reg.Lookup("123456")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJoin(t *testing.T) {
	reg, mock := newTestRegistry(t, Options{})
	a, b, c := &testConn{"a"}, &testConn{"b"}, &testConn{"c"}

	room, err := reg.Open(a)
	require.NoError(t, err)

	mock.Add(2 * time.Minute)
	joined, err := reg.Join(room.Code, b)
	require.NoError(t, err)
	assert.Equal(t, StatePaired, joined.State())
	assert.Equal(t, room.SessionID, joined.SessionID)
	assert.Equal(t, mock.Now().Add(DefaultTTL), joined.ExpiresAt)

	_, err = reg.Join(room.Code, c)
	assert.ErrorIs(t, err, ErrSessionFull)

	unknown := "000001"
	if room.Code == unknown {
		unknown = "000002"
	}
	_, err = reg.Join(unknown, c)
	assert.ErrorIs(t, err, ErrNotFound)

	peer, ok := reg.Counterpart(a)
	require.True(t, ok)
	assert.Same(t, b, peer)

	peer, ok = reg.Counterpart(b)
	require.True(t, ok)
	assert.Same(t, a, peer)
}

func TestConcurrentJoinsAdmitExactlyOne(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})

	room, err := reg.Open(&testConn{"creator"})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		full    int
	)
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Join(room.Code, &testConn{name: string(rune('a' + i%26))})
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				success++
			case ErrSessionFull:
				full++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, 49, full)
}

func TestTouchRefreshesFromEventTime(t *testing.T) {
	reg, mock := newTestRegistry(t, Options{})

	code, _, err := reg.CreateRoom()
	require.NoError(t, err)

	mock.Add(4 * time.Minute)
	require.True(t, reg.Touch(code))

	room, err := reg.Lookup(code)
	require.NoError(t, err)
	assert.Equal(t, mock.Now().Add(DefaultTTL), room.ExpiresAt)

	assert.False(t, reg.Touch("999999"))
}

func TestTouchNeverMovesExpiryBackward(t *testing.T) {
	reg, mock := newTestRegistry(t, Options{TTL: time.Minute})

	code, _, err := reg.CreateRoom()
	require.NoError(t, err)
	before, err := reg.Lookup(code)
	require.NoError(t, err)

	mock.Set(mock.Now().Add(-30 * time.Second))
	reg.Touch(code)

	after, err := reg.Lookup(code)
	require.NoError(t, err)
	assert.Equal(t, before.ExpiresAt, after.ExpiresAt)
}

func TestSweep(t *testing.T) {
	reg, mock := newTestRegistry(t, Options{})
	a, b := &testConn{"a"}, &testConn{"b"}

	idle, err := reg.Open(a)
	require.NoError(t, err)
	busy, err := reg.Open(b)
	require.NoError(t, err)
	empty, _, err := reg.CreateRoom()
	require.NoError(t, err)

	removed := reg.Sweep(mock.Now())
	assert.Equal(t, []string{empty}, removed)

	mock.Add(3 * time.Minute)
	reg.Touch(busy.Code)
	mock.Add(2*time.Minute + time.Second)

	removed = reg.Sweep(mock.Now())
	assert.Equal(t, []string{idle.Code}, removed)

	_, err = reg.Lookup(idle.Code)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, ok := reg.Binding(a)
	assert.False(t, ok)

	_, err = reg.Lookup(busy.Code)
	assert.NoError(t, err)
}

func TestSweepKeepsRoomExpiringExactlyNow(t *testing.T) {
	reg, mock := newTestRegistry(t, Options{})

	room, err := reg.Open(&testConn{"a"})
	require.NoError(t, err)

	mock.Add(DefaultTTL)
	assert.Empty(t, reg.Sweep(mock.Now()))

	mock.Add(time.Millisecond)
	assert.Equal(t, []string{room.Code}, reg.Sweep(mock.Now()))
}

func TestUnbind(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	a, b := &testConn{"a"}, &testConn{"b"}

	room, err := reg.Open(a)
	require.NoError(t, err)
	_, err = reg.Join(room.Code, b)
	require.NoError(t, err)

	d, ok := reg.Unbind(a)
	require.True(t, ok)
	assert.Equal(t, room.Code, d.Code)
	assert.Equal(t, RoleA, d.Role)
	assert.True(t, d.HasRemaining)
	assert.Same(t, b, d.Remaining)
	assert.False(t, d.Removed)

	left, err := reg.Lookup(room.Code)
	require.NoError(t, err)
	assert.Equal(t, StateWaitingForPeer, left.State())

	d, ok = reg.Unbind(b)
	require.True(t, ok)
	assert.False(t, d.HasRemaining)
	assert.True(t, d.Removed)

	_, err = reg.Lookup(room.Code)
	assert.ErrorIs(t, err, ErrNotFound)

	_, ok = reg.Unbind(b)
	assert.False(t, ok)
}

func TestAdmission(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{MaxConnsPerAddr: 3})

	for range 3 {
		assert.True(t, reg.Admit("10.0.0.1"))
	}
	assert.False(t, reg.Admit("10.0.0.1"))
	assert.True(t, reg.Admit("10.0.0.2"))
	assert.Equal(t, 4, reg.Stats().Connections)

	reg.Release("10.0.0.1")
	assert.True(t, reg.Admit("10.0.0.1"))

	for range 5 {
		reg.Release("10.0.0.2")
	}
	assert.Equal(t, 3, reg.Stats().Connections)
}

func TestValidCode(t *testing.T) {
	cases := map[string]bool{
		"482913":  true,
		"000000":  true,
		"12":      false,
		"1234567": false,
		"12a456":  false,
		"":        false,
		"١٢٣٤٥٦":  false,
	}
	for code, want := range cases {
		assert.Equal(t, want, ValidCode(code), "code %q", code)
	}
}
