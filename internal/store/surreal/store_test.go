package surreal

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hackchat/internal/database"
	"github.com/nfrund/hackchat/internal/domain"
	"github.com/nfrund/hackchat/internal/store"
	"github.com/nfrund/hackchat/internal/store/storetest"
)

type testSettings struct {
	url, db string
}

func (s testSettings) GetSurrealURL() string { return s.url }
func (s testSettings) GetDBNs() string       { return "hackchat_test" }
func (s testSettings) GetDBDb() string       { return s.db }
func (s testSettings) GetDBUser() string     { return envOr("SURREAL_USER", "root") }
func (s testSettings) GetDBPass() string     { return envOr("SURREAL_PASS", "root") }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// openTestStore connects to a fresh database on SURREAL_URL.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping SurrealDB test in short mode")
	}
	url := os.Getenv("SURREAL_URL")
	if url == "" {
		t.Skip("SURREAL_URL not set")
	}

	ctx := context.Background()
	settings := testSettings{url: url, db: "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")}
	db, err := database.Connect(ctx, settings, database.NewExponentialBackoffRetryer(1))
	require.NoError(t, err)

	s, err := New(ctx, database.NewExecutor(db, 5*time.Second, 10*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Execute(context.Background(), s.exec, "REMOVE DATABASE "+settings.db, nil)
		_ = s.Close()
	})
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.MessageStore {
		return openTestStore(t)
	})
}

func TestRecordRoundTrip(t *testing.T) {
	m := storetest.NewMessage("room", 3, "alice", "Hello")
	m.AttachmentURL = "https://files.example.com/a.png"
	m.MessageType = domain.MessageImage

	r := toRecord(m)
	assert.Equal(t, "hello", r.TextFolded)
	assert.Equal(t, store.ToMicros(m.CreatedAt), r.CreatedUS)

	got := r.message()
	assert.Equal(t, *m, got)
}

func TestRecord_NilReadersBecomeEmpty(t *testing.T) {
	m := storetest.NewMessage("room", 1, "alice", "hi")
	m.ReadBy = nil

	assert.NotNil(t, toRecord(m).ReadBy)
	assert.NotNil(t, record{}.message().ReadBy)
}
