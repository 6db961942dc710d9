package relay

import (
	"bytes"
	"context"
	"testing"

	"github.com/nalgeon/be"

	"tgstream/internal/backend/fake"
	"tgstream/internal/streamer"
)

type testAccount struct {
	backend *fake.Backend
	archive *fake.Archive
}

func newRelay(t *testing.T, n int, data []byte) (*Relay, []testAccount) {
	t.Helper()
	accounts := make([]Account, n)
	test := make([]testAccount, n)
	for i := range n {
		b := fake.New(2)
		b.Put(500, data)
		a := fake.NewArchive()
		a.Add(fake.Document(1, 500, 4, "video.mkv", "video/x-matroska", int64(len(data))))
		accounts[i] = Account{Backend: b, Archive: a}
		test[i] = testAccount{backend: b, archive: a}
	}

	r, err := New(accounts, Config{ChunkSize: 64}, nil)
	be.Err(t, err, nil)
	t.Cleanup(func() { _ = r.Close() })
	return r, test
}

func TestNewWithoutAccounts(t *testing.T) {
	_, err := New(nil, Config{}, nil)
	be.Err(t, err)
}

func TestResolve(t *testing.T) {
	r, _ := newRelay(t, 1, []byte("hello"))

	f, err := r.Describe(context.Background(), 1)
	be.Err(t, err, nil)
	be.Equal(t, f.FileName, "video.mkv")

	got, err := r.Resolve(context.Background(), 1, f.Hash())
	be.Err(t, err, nil)
	be.True(t, got.FileDescriptor == f.FileDescriptor)

	_, err = r.Resolve(context.Background(), 1, "wrong!")
	be.Err(t, err, ErrInvalidHash)

	_, err = r.Resolve(context.Background(), 2, f.Hash())
	be.Err(t, err, ErrNotFound)
}

func TestOpenOnForeignDC(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 50)
	r, accs := newRelay(t, 1, data)

	f, err := r.Describe(context.Background(), 1)
	be.Err(t, err, nil)

	st, err := r.Open(context.Background(), f, 100, 299)
	be.Err(t, err, nil)
	var buf bytes.Buffer
	for chunk := range st.Chunks(context.Background()) {
		buf.Write(chunk)
	}
	be.Equal(t, buf.Bytes(), data[100:300])
	be.Equal(t, st.Result().Reason, streamer.ReasonCompleted)

	// файл лежит на dc 4, аккаунт живёт на dc 2
	stats := accs[0].backend.Stats()
	be.Equal(t, stats.Keys, 1)
	be.Equal(t, stats.Imports, 1)
}

func TestLeastLoadedWorker(t *testing.T) {
	r, accs := newRelay(t, 3, []byte("payload"))
	ctx := context.Background()

	// занимаем первого воркера открытым потоком
	f0, err := r.Describe(ctx, 1)
	be.Err(t, err, nil)
	be.Equal(t, f0.Worker(), 0)
	st, err := r.Open(ctx, f0, 0, 6)
	be.Err(t, err, nil)

	f1, err := r.Describe(ctx, 1)
	be.Err(t, err, nil)
	be.Equal(t, f1.Worker(), 1)
	be.Equal(t, accs[1].archive.Calls(), 1)

	status := r.Status()
	be.Equal(t, status.Workers, 3)
	be.Equal(t, status.Loads[0].Value, int64(1))
	be.Equal(t, status.Loads[0].Name, "bot1")

	st.Close()
	be.Equal(t, r.Status().Loads[0].Value, int64(0))
}

func TestClose(t *testing.T) {
	r, accs := newRelay(t, 2, []byte("x"))
	f, err := r.Describe(context.Background(), 1)
	be.Err(t, err, nil)
	st, err := r.Open(context.Background(), f, 0, 0)
	be.Err(t, err, nil)
	st.Close()

	be.Err(t, r.Close(), nil)
	for _, s := range accs[0].backend.Sessions() {
		be.True(t, s.Stopped())
	}

	_, err = r.Describe(context.Background(), 1)
	be.Err(t, err)
}
