package binary

import (
	"bytes"
	"context"
	"crypto/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const owner = "org.silastandard/examples/BinaryTransferTest/v1/Command/EchoBinaryValue/Parameter/BinaryValue"

type stubObserver struct {
	mock.Mock
}

func (o *stubObserver) BinaryCreated(dir Direction)                { o.Called(dir) }
func (o *stubObserver) BinaryRemoved(dir Direction, reason string) { o.Called(dir, reason) }
func (o *stubObserver) ChunkTransferred(dir Direction, size int)   { o.Called(dir, size) }

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	r := NewRegistry(cfg)
	t.Cleanup(r.Close)
	return r
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestUploadDownloadLargePayload(t *testing.T) {
	const chunk = 64 << 10
	r := newTestRegistry(t, Config{MaxChunkSize: chunk})
	payload := randomBytes(t, 10<<20)

	info, err := r.CreateUpload(owner, uint64(len(payload)), uint32(len(payload)/chunk))
	require.NoError(t, err)
	assert.Equal(t, StateCreated, info.State)

	for off := 0; off < len(payload); off += chunk {
		received, err := r.AppendChunk(info.ID, uint64(off), payload[off:off+chunk])
		require.NoError(t, err)
		assert.Equal(t, uint64(off+chunk), received)
	}

	info, err = r.Info(info.ID)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, info.State)
	assert.Equal(t, uint64(len(payload)), info.Transferred)

	data, err := r.Await(context.Background(), info.ID, owner)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, data))

	// Consumed.
	_, err = r.Info(info.ID)
	assert.ErrorIs(t, err, ErrBinaryUnknown)

	id, err := r.Publish(context.Background(), data)
	require.NoError(t, err)
	dl, err := r.CreateDownload(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), dl.TotalSize)
	assert.Equal(t, StateAvailable, dl.State)

	var out bytes.Buffer
	for off := uint64(0); off < dl.TotalSize; off += chunk {
		c, err := r.GetChunk(id, off, chunk)
		require.NoError(t, err)
		out.Write(c)
	}
	assert.True(t, bytes.Equal(payload, out.Bytes()))

	// Fully consumed downloads are removed.
	_, err = r.GetChunk(id, 0, chunk)
	assert.ErrorIs(t, err, ErrBinaryUnknown)
}

func TestAppendChunkRejectsWithoutStateChange(t *testing.T) {
	r := newTestRegistry(t, Config{MaxChunkSize: 4})
	info, err := r.CreateUpload(owner, 10, 0)
	require.NoError(t, err)

	_, err = r.AppendChunk(info.ID, 0, []byte("abcd"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		offset uint64
		data   []byte
		want   error
	}{
		{"duplicate", 0, []byte("abcd"), ErrInvalidChunkIndex},
		{"gap", 8, []byte("ij"), ErrInvalidChunkIndex},
		{"empty", 4, nil, ErrInvalidChunkIndex},
		{"too large", 4, []byte("efghi"), ErrChunkTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			received, err := r.AppendChunk(info.ID, tt.offset, tt.data)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, uint64(4), received)

			got, err := r.Info(info.ID)
			require.NoError(t, err)
			assert.Equal(t, StateUploading, got.State)
			assert.Equal(t, uint64(4), got.Transferred)
		})
	}

	_, err = r.AppendChunk(info.ID, 4, []byte("efgh"))
	require.NoError(t, err)

	// Overshooting the declared size.
	_, err = r.AppendChunk(info.ID, 8, []byte("ijk"))
	assert.ErrorIs(t, err, ErrInvalidChunkIndex)

	_, err = r.AppendChunk(info.ID, 8, []byte("ij"))
	require.NoError(t, err)

	// Complete uploads accept nothing more.
	_, err = r.AppendChunk(info.ID, 10, []byte("k"))
	assert.ErrorIs(t, err, ErrInvalidChunkIndex)

	data, err := r.Await(context.Background(), info.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefghij"), data)
}

func TestCreateUploadLimits(t *testing.T) {
	r := newTestRegistry(t, Config{MaxChunkSize: 8, MaxTotalSize: 100})

	_, err := r.CreateUpload(owner, 101, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = r.CreateUpload(owner, 17, 2)
	assert.ErrorIs(t, err, ErrInvalidSize)

	info, err := r.CreateUpload(owner, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, info.State)
	data, err := r.Await(context.Background(), info.ID, owner)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestAwaitBlocksUntilComplete(t *testing.T) {
	r := newTestRegistry(t, DefaultConfig())
	info, err := r.CreateUpload(owner, 6, 2)
	require.NoError(t, err)

	result := make(chan []byte, 1)
	go func() {
		data, err := r.Await(context.Background(), info.ID, owner)
		if err == nil {
			result <- data
		}
		close(result)
	}()

	_, err = r.AppendChunk(info.ID, 0, []byte("foo"))
	require.NoError(t, err)

	select {
	case <-result:
		t.Fatal("Await returned before the upload was complete")
	case <-time.After(20 * time.Millisecond):
	}

	_, err = r.AppendChunk(info.ID, 3, []byte("bar"))
	require.NoError(t, err)

	select {
	case data := <-result:
		assert.Equal(t, []byte("foobar"), data)
	case <-time.After(time.Second):
		t.Fatal("Await did not return")
	}
}

func TestAwaitContextAndDelete(t *testing.T) {
	r := newTestRegistry(t, DefaultConfig())
	info, err := r.CreateUpload(owner, 6, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = r.Await(ctx, info.ID, owner)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	errs := make(chan error, 1)
	go func() {
		_, err := r.Await(context.Background(), info.ID, owner)
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.Delete(info.ID))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrBinaryUnknown)
	case <-time.After(time.Second):
		t.Fatal("Await not released by Delete")
	}

	assert.ErrorIs(t, r.Delete(info.ID), ErrBinaryUnknown)
	_, err = r.Await(context.Background(), uuid.New(), "")
	assert.ErrorIs(t, err, ErrBinaryUnknown)
}

func TestIdleExpiry(t *testing.T) {
	r := newTestRegistry(t, Config{IdleTimeout: 30 * time.Millisecond})
	info, err := r.CreateUpload(owner, 4, 0)
	require.NoError(t, err)
	_, err = r.AppendChunk(info.ID, 0, []byte("ab"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := r.Info(info.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)

	_, err = r.AppendChunk(info.ID, 2, []byte("cd"))
	assert.ErrorIs(t, err, ErrBinaryUnknown)
	assert.Equal(t, 0, r.Len())
}

func TestGetChunkOrdering(t *testing.T) {
	r := newTestRegistry(t, Config{MaxChunkSize: 4})
	id, err := r.Publish(context.Background(), []byte("0123456789"))
	require.NoError(t, err)

	_, err = r.GetChunk(id, 4, 4)
	assert.ErrorIs(t, err, ErrInvalidChunkIndex)
	_, err = r.GetChunk(id, 0, 5)
	assert.ErrorIs(t, err, ErrChunkTooLarge)

	c, err := r.GetChunk(id, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123"), c)

	info, err := r.Info(id)
	require.NoError(t, err)
	assert.Equal(t, StateDownloading, info.State)
	assert.Equal(t, uint64(4), info.Transferred)

	_, err = r.GetChunk(id, 0, 4)
	assert.ErrorIs(t, err, ErrInvalidChunkIndex)

	c, err = r.GetChunk(id, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("4567"), c)
	c, err = r.GetChunk(id, 8, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("89"), c)

	assert.Equal(t, 0, r.Len())
}

func TestDirectionMismatch(t *testing.T) {
	r := newTestRegistry(t, DefaultConfig())
	up, err := r.CreateUpload(owner, 4, 0)
	require.NoError(t, err)
	down, err := r.Publish(context.Background(), []byte("data"))
	require.NoError(t, err)

	_, err = r.GetChunk(up.ID, 0, 4)
	assert.ErrorIs(t, err, ErrBinaryUnknown)
	_, err = r.CreateDownload(up.ID)
	assert.ErrorIs(t, err, ErrBinaryUnknown)
	_, err = r.AppendChunk(down, 0, []byte("x"))
	assert.ErrorIs(t, err, ErrBinaryUnknown)
}

func TestAwaitPublished(t *testing.T) {
	r := newTestRegistry(t, DefaultConfig())
	ctx := context.Background()

	id, err := r.Publish(ctx, []byte("data"))
	require.NoError(t, err)
	data, err := r.Await(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
	assert.Equal(t, 0, r.Len())
	_, err = r.GetChunk(id, 0, 4)
	assert.ErrorIs(t, err, ErrBinaryUnknown)

	// A download in progress is not handed out.
	id, err = r.Publish(ctx, []byte("data"))
	require.NoError(t, err)
	_, err = r.GetChunk(id, 0, 2)
	require.NoError(t, err)
	_, err = r.Await(ctx, id, "")
	assert.ErrorIs(t, err, ErrBinaryUnknown)

	// Published binaries belong to no parameter.
	id, err = r.Publish(ctx, []byte("data"))
	require.NoError(t, err)
	_, err = r.Await(ctx, id, owner)
	assert.ErrorIs(t, err, ErrBinaryUnknown)
}

func TestAwaitChecksOwner(t *testing.T) {
	r := newTestRegistry(t, DefaultConfig())
	ctx := context.Background()
	other := "org.silastandard/examples/BinaryTransferTest/v1/Command/EchoBinaryValue/Parameter/Other"

	info, err := r.CreateUpload(owner, 4, 0)
	require.NoError(t, err)
	_, err = r.AppendChunk(info.ID, 0, []byte("abcd"))
	require.NoError(t, err)

	_, err = r.Await(ctx, info.ID, other)
	assert.ErrorIs(t, err, ErrBinaryUnknown)

	// The rejected call leaves the upload in place.
	info, err = r.Info(info.ID)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, info.State)

	data, err := r.Await(ctx, info.ID, strings.ToUpper(owner))
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), data)
}

func TestParallelUploads(t *testing.T) {
	r := newTestRegistry(t, Config{MaxChunkSize: 1024})
	const uploads = 16

	payloads := make([][]byte, uploads)
	ids := make([]uuid.UUID, uploads)
	for i := range payloads {
		payloads[i] = randomBytes(t, 8*1024)
		info, err := r.CreateUpload(owner, uint64(len(payloads[i])), 8)
		require.NoError(t, err)
		ids[i] = info.ID
	}

	var wg sync.WaitGroup
	for i := range payloads {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for off := 0; off < len(payloads[i]); off += 1024 {
				if _, err := r.AppendChunk(ids[i], uint64(off), payloads[i][off:off+1024]); err != nil {
					t.Errorf("upload %d: %v", i, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i := range payloads {
		data, err := r.Await(context.Background(), ids[i], owner)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(payloads[i], data), "upload %d differs", i)
	}
}

func TestConcurrentAppendSameOffset(t *testing.T) {
	r := newTestRegistry(t, DefaultConfig())
	info, err := r.CreateUpload(owner, 8, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.AppendChunk(info.ID, 0, []byte("abcd")); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	got, err := r.Info(info.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), got.Transferred)
}

func TestObserver(t *testing.T) {
	obs := &stubObserver{}
	obs.On("BinaryCreated", Upload).Once()
	obs.On("ChunkTransferred", Upload, 3).Once()
	obs.On("BinaryRemoved", Upload, "consumed").Once()

	r := NewRegistry(Config{Observer: obs})
	defer r.Close()

	info, err := r.CreateUpload(owner, 3, 1)
	require.NoError(t, err)
	_, err = r.AppendChunk(info.ID, 0, []byte("abc"))
	require.NoError(t, err)
	_, err = r.Await(context.Background(), info.ID, owner)
	require.NoError(t, err)

	obs.AssertExpectations(t)
}
