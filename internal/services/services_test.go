package services

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"awscqrs/internal/capture"
	"awscqrs/internal/changefeed"
	"awscqrs/internal/domain/contact"
	"awscqrs/internal/domain/event"
	"awscqrs/internal/events"
	"awscqrs/internal/repository"
	awscqrs_errors "awscqrs/pkg/errors"
	"awscqrs/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.Claims, method jwt.SigningMethod, key any) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestTokenVerifier_Parse(t *testing.T) {
	v := NewTokenVerifier(secret)

	token := sign(t, jwt.MapClaims{
		"sub":              "sub-1",
		"cognito:username": "alice",
		"cognito:groups":   []string{"users", "admins"},
		"exp":              time.Now().Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS256, []byte(secret))
	claims, err := v.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID())
	assert.True(t, claims.IsAdmin())

	subOnly := sign(t, jwt.MapClaims{"sub": "bob", "cognito:groups": "[users]"}, jwt.SigningMethodHS256, []byte(secret))
	claims, err = v.Parse(subOnly)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.UserID())
	assert.False(t, claims.IsAdmin())
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v := NewTokenVerifier(secret)

	cases := map[string]string{
		"empty":      "",
		"garbage":    "not-a-token",
		"wrong key":  sign(t, jwt.MapClaims{"sub": "alice"}, jwt.SigningMethodHS256, []byte("other")),
		"expired":    sign(t, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(-time.Minute).Unix()}, jwt.SigningMethodHS256, []byte(secret)),
		"no subject": sign(t, jwt.MapClaims{"scope": "x"}, jwt.SigningMethodHS256, []byte(secret)),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Parse(token)
			assert.ErrorIs(t, err, awscqrs_errors.ErrUnauthorized)
		})
	}
}

func TestIsIncludedInGroup(t *testing.T) {
	assert.True(t, IsIncludedInGroup("[admins, users]", "admins"))
	assert.True(t, IsIncludedInGroup("users,admins", "admins"))
	assert.True(t, IsIncludedInGroup("admins", "admins"))
	assert.False(t, IsIncludedInGroup("[superadmins]", "admins"))
	assert.False(t, IsIncludedInGroup("", "admins"))
}

func TestGroups_UnmarshalBothShapes(t *testing.T) {
	var fromArray, fromString Groups
	require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &fromArray))
	require.NoError(t, json.Unmarshal([]byte(`"[a, b]"`), &fromString))
	assert.Equal(t, Groups{"a", "b"}, fromArray)
	assert.Equal(t, fromArray, fromString)
}

func TestClock_IsStrictlyIncreasing(t *testing.T) {
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewClock(func() time.Time { return frozen })

	first := c.Next()
	second := c.Next()
	assert.Equal(t, frozen, first)
	assert.Equal(t, frozen.Add(time.Nanosecond), second)

	back := NewClock(func() time.Time { return frozen.Add(-time.Hour) })
	back.last = frozen
	assert.True(t, back.Next().After(frozen))
}

func TestCommandService_Accept(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryEventRepository()
	svc := NewCommandService(store, nil, logger.NewNop())

	e, err := svc.Accept(ctx, "POST", []byte(`{"name":"buy milk","completed":false,"typename":"Note","owner":"mallory","id":"x"}`), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", e.Owner)
	assert.Equal(t, "Note", e.Typename)
	assert.NotContains(t, e.Payload, "owner")
	assert.NotContains(t, e.Payload, "id")

	stored, err := store.Get(ctx, "alice", e.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, e.ID, stored.ID)
	assert.Equal(t, "buy milk", stored.Payload["name"])

	_, err = time.Parse(time.RFC3339Nano, e.Timestamp)
	assert.NoError(t, err)
}

func TestCommandService_Validation(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		method string
		body   string
		user   string
		code   int
	}{
		{"missing method", "", `{}`, "alice", http.StatusBadRequest},
		{"wrong method", "GET", `{}`, "alice", http.StatusMethodNotAllowed},
		{"empty body", "POST", ``, "alice", http.StatusBadRequest},
		{"invalid json", "POST", `{nope`, "alice", http.StatusBadRequest},
		{"array body", "POST", `[1,2]`, "alice", http.StatusBadRequest},
		{"no user", "POST", `{"name":"x"}`, "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := repository.NewMemoryEventRepository()
			svc := NewCommandService(store, nil, logger.NewNop())

			_, err := svc.Accept(ctx, tc.method, []byte(tc.body), tc.user)
			ce, ok := awscqrs_errors.AsCustomError(err)
			require.True(t, ok, "want CustomError, got %v", err)
			assert.Equal(t, tc.code, ce.Code)

			feed, err := store.ReadFeed(ctx, 0, 10)
			require.NoError(t, err)
			assert.Empty(t, feed, "nothing is appended for a rejected command")
		})
	}
}

type conflictStore struct{ repository.EventStore }

func (conflictStore) Append(context.Context, event.Event) error {
	return awscqrs_errors.ErrConflict
}

func TestCommandService_ConflictIs409(t *testing.T) {
	svc := NewCommandService(conflictStore{}, nil, logger.NewNop())
	_, err := svc.Accept(context.Background(), "POST", []byte(`{}`), "alice")
	ce, ok := awscqrs_errors.AsCustomError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, ce.Code)
}

func TestCommandService_SameInstantCommandsDoNotCollide(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryEventRepository()
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewCommandService(store, NewClock(func() time.Time { return frozen }), logger.NewNop())

	for i := 0; i < 3; i++ {
		_, err := svc.Accept(ctx, "POST", []byte(`{"name":"n"}`), "alice")
		require.NoError(t, err)
	}
	list, err := store.ListByOwner(ctx, "alice", "", 10)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

type mapCache struct {
	items map[string]contact.Contact
	sets  int
}

func (m *mapCache) GetContact(_ context.Context, id string) (*contact.Contact, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *mapCache) SetContact(_ context.Context, c contact.Contact) error {
	m.items[c.ID] = c
	m.sets++
	return nil
}

func TestContactService_GetByID(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryContactRepository()
	require.NoError(t, repo.Upsert(ctx, contact.Contact{ID: "c1", Name: "milk", Owner: "alice"}))
	cache := &mapCache{items: map[string]contact.Contact{}}
	svc := NewContactService(repo, cache, logger.NewNop())

	alice := Claims{Username: "alice"}
	got, err := svc.GetByID(ctx, alice, "c1")
	require.NoError(t, err)
	assert.Equal(t, "milk", got.Name)
	assert.Equal(t, 1, cache.sets, "a miss fills the cache")

	_, err = svc.GetByID(ctx, alice, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets, "a hit does not touch the store")

	_, err = svc.GetByID(ctx, Claims{Username: "bob"}, "c1")
	assert.ErrorIs(t, err, awscqrs_errors.ErrNotFound)

	_, err = svc.GetByID(ctx, Claims{Username: "bob", Groups: Groups{AdminGroup}}, "c1")
	assert.NoError(t, err)

	_, err = svc.GetByID(ctx, alice, "missing")
	assert.ErrorIs(t, err, awscqrs_errors.ErrNotFound)
}

func TestContactService_List(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryContactRepository()
	require.NoError(t, repo.Upsert(ctx, contact.Contact{ID: "c1", Owner: "alice"}))
	require.NoError(t, repo.Upsert(ctx, contact.Contact{ID: "c2", Owner: "bob"}))
	svc := NewContactService(repo, nil, logger.NewNop())

	mine, err := svc.List(ctx, Claims{Username: "alice"}, "", 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "c1", mine[0].ID)

	_, err = svc.List(ctx, Claims{Username: "alice"}, "bob", 0)
	assert.ErrorIs(t, err, awscqrs_errors.ErrForbidden)

	all, err := svc.List(ctx, Claims{Username: "root", Groups: Groups{AdminGroup}}, "*", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReplayService(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryEventRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		typename := "Note"
		if i == 1 {
			typename = "Other"
		}
		require.NoError(t, store.Append(ctx, event.Event{
			Owner: "alice", Timestamp: event.FormatTimestamp(base.Add(time.Duration(i) * time.Second)),
			ID: uuid.New(), Typename: typename, Payload: map[string]any{"name": "n"},
		}))
	}

	bus := events.NewMemoryBus("", time.Minute)
	q := bus.Subscribe("replay", 10, 3)
	svc := NewReplayService(store, capture.NewHandler(bus, nil, "", logger.NewNop()), logger.NewNop())

	res, err := svc.Replay(ctx, ReplayRequest{Owner: "alice", Typename: "Note"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Events)
	assert.Equal(t, 2, res.Result.Published)
	assert.Equal(t, 2, q.Len())

	_, err = svc.Replay(ctx, ReplayRequest{Owner: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 3, q.Len(), "unforced replays inside the window are deduplicated")

	_, err = svc.Replay(ctx, ReplayRequest{Owner: "alice", Force: true})
	require.NoError(t, err)
	assert.Equal(t, 6, q.Len())

	_, err = svc.Replay(ctx, ReplayRequest{})
	assert.ErrorIs(t, err, awscqrs_errors.ErrInvalidInput)
}

func TestBuildReplayBatch(t *testing.T) {
	e := event.Event{Owner: "alice", Timestamp: "2024-01-01T00:00:00.000000000Z", ID: uuid.New()}
	batch, err := BuildReplayBatch([]event.Event{e}, "", true)
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	rec := batch.Records[0]
	assert.Equal(t, changefeed.EventInsert, rec.EventName)
	flat := changefeed.Flatten(rec.Change.NewImage)
	assert.Contains(t, flat[event.AttrRequestID], "replay-")
}
