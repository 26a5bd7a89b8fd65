package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"filedrop/internal/ident"
	"filedrop/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const aliceKey = "alicealicealicealicealicealicealicealicealicealicealicealiceabcd"

type fixture struct {
	svc   *Service
	files *memFiles
	users *memUsers
}

func newFixture(t *testing.T, opts Options, blobs storage.BlobStorage) fixture {
	t.Helper()
	files := newMemFiles()
	users := newMemUsers()
	users.seed("alice", aliceKey)
	if opts.MaxUploadBytes == 0 {
		opts.MaxUploadBytes = 16
	}
	return fixture{svc: New(files, users, blobs, opts, nil), files: files, users: users}
}

func payload(p Payload) PayloadSource {
	return func() (Payload, error) { return p, nil }
}

func upload(f fixture, credential string, body []byte) (string, error) {
	return f.svc.Upload(context.Background(), credential, payload(Payload{
		Filename:    "cat.png",
		ContentType: "image/png",
		Size:        int64(len(body)),
		Body:        bytes.NewReader(body),
	}))
}

func readAll(t *testing.T, tr *Transfer) []byte {
	t.Helper()
	defer tr.Close()
	b, err := io.ReadAll(tr.Body)
	require.NoError(t, err)
	return b
}

func TestUpload_ThenViewAndDownload(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{AttributeUploads: true}, nil)
	payload := []byte{0x89, 'P', 'N', 'G', 0, 1, 2}

	id, err := upload(f, aliceKey, payload)
	require.NoError(t, err)
	assert.True(t, ident.Valid(id), id)

	view, err := f.svc.View(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "image/png", view.ContentType)
	assert.Equal(t, `inline; filename="cat.png"`, view.ContentDisposition())
	assert.Equal(t, payload, readAll(t, view))

	dl, err := f.svc.Download(context.Background(), id+".png")
	require.NoError(t, err)
	assert.Equal(t, `attachment; filename="cat.png"`, dl.ContentDisposition())
	assert.EqualValues(t, len(payload), dl.Size)
	assert.Equal(t, payload, readAll(t, dl))

	rec, err := f.files.GetFile(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, rec.Uploader)
	assert.Equal(t, "alice", *rec.Uploader)
}

func TestView_SuffixStripping(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{}, nil)
	id, err := upload(f, aliceKey, []byte("hello"))
	require.NoError(t, err)

	for _, raw := range []string{id, id + ".png", id + ".tar.gz", id + "."} {
		tr, err := f.svc.View(context.Background(), raw)
		require.NoError(t, err, raw)
		assert.Equal(t, id, tr.Identifier)
		assert.Equal(t, []byte("hello"), readAll(t, tr))
	}
}

func TestView_NotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{}, nil)
	for _, raw := range []string{"AAAAAAAAAAAAAAAAAAAAAAAA", "AAAAAAAAAAAAAAAAAAAAAAAA.png", "short", "", "../etc/passwd"} {
		_, err := f.svc.View(context.Background(), raw)
		assert.ErrorIs(t, err, ErrNotFound, raw)
		_, err = f.svc.Download(context.Background(), raw)
		assert.ErrorIs(t, err, ErrNotFound, raw)
	}
	_, err := f.svc.View(context.Background(), "AAAAAAAAAAAAAAAAAAAAAAAA.jpg")
	assert.EqualError(t, err, `There is no file with the entry "AAAAAAAAAAAAAAAAAAAAAAAA".`)
}

func TestUpload_Unauthorized(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{}, nil)
	for _, cred := range []string{"", "not-a-key", strings.ToUpper(aliceKey)} {
		_, err := f.svc.Upload(context.Background(), cred, func() (Payload, error) {
			t.Fatal("payload must not be read before the credential is accepted")
			return Payload{}, nil
		})
		assert.ErrorIs(t, err, ErrUnauthorized, cred)
		assert.EqualError(t, err, "Forbidden")
	}
	assert.Zero(t, f.files.count())
}

func TestUpload_TransportReportsTooLarge(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{MaxUploadBytes: 16}, nil)
	_, err := f.svc.Upload(context.Background(), aliceKey, func() (Payload, error) {
		return Payload{}, fmt.Errorf("parse form: %w", ErrPayloadTooLarge)
	})
	assert.EqualError(t, err, "Filesize can't be over 16 Bytes.")

	_, err = f.svc.Upload(context.Background(), aliceKey, func() (Payload, error) {
		return Payload{}, fmt.Errorf("%w: no file", ErrInvalidInput)
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, f.files.count())
}

func TestUpload_NoUsersRejectsEverything(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{}, nil)
	require.NoError(t, f.users.DeleteUser(context.Background(), "alice"))
	_, err := upload(f, aliceKey, []byte("x"))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, f.files.count())
}

func TestUpload_SizeCeiling(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{MaxUploadBytes: 16}, nil)

	_, err := upload(f, aliceKey, bytes.Repeat([]byte("a"), 16))
	require.NoError(t, err, "exactly the ceiling is accepted")

	_, err = upload(f, aliceKey, bytes.Repeat([]byte("a"), 17))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.EqualError(t, err, "Filesize can't be over 16 Bytes.")
	assert.Equal(t, 1, f.files.count())
}

func TestUpload_SizeCeilingEnforcedWhileReading(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{MaxUploadBytes: 16}, nil)
	_, err := f.svc.Upload(context.Background(), aliceKey, payload(Payload{
		Filename: "big.bin",
		Size:     -1,
		Body:     bytes.NewReader(bytes.Repeat([]byte("a"), 17)),
	}))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Zero(t, f.files.count())
}

func TestUpload_DefaultCeilingMessage(t *testing.T) {
	t.Parallel()
	svc := New(newMemFiles(), newMemUsers(), nil, Options{}, nil)
	assert.EqualError(t, svc.tooLarge(), "Filesize can't be over 500.0 MB.")
}

func TestNaturalSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n    int64
		want string
	}{
		{1, "1 Byte"},
		{16, "16 Bytes"},
		{999, "999 Bytes"},
		{1000, "1.0 kB"},
		{1536, "1.5 kB"},
		{1_000_000, "1.0 MB"},
		{500_000_000, "500.0 MB"},
		{2_000_000_000, "2.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, naturalSize(tt.n), "naturalSize(%d)", tt.n)
	}
}

func TestUpload_Anonymous(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{AttributeUploads: false}, nil)
	id, err := upload(f, aliceKey, []byte("x"))
	require.NoError(t, err)
	rec, err := f.files.GetFile(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, rec.Uploader)
	assert.Equal(t, 1, f.users.lists, "anonymous uploads only authorize")
}

func TestUpload_IdentityResolutionFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{AttributeUploads: true}, nil)
	// The key is revoked between the authorize and resolve reads.
	f.users.afterFirstList = map[string]string{}

	_, err := upload(f, aliceKey, []byte("x"))
	assert.ErrorIs(t, err, ErrIdentityResolution)
	assert.Zero(t, f.files.count())
}

func TestUpload_DefaultContentType(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{}, nil)
	id, err := f.svc.Upload(context.Background(), aliceKey, payload(Payload{
		Filename: "blob",
		Size:     1,
		Body:     strings.NewReader("x"),
	}))
	require.NoError(t, err)
	tr, err := f.svc.View(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", tr.ContentType)
}

func TestUpload_RetriesDuplicateIdentifier(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{}, nil)
	f.files.dupNext = 3

	id, err := upload(f, aliceKey, []byte("x"))
	require.NoError(t, err)
	assert.True(t, ident.Valid(id))
	assert.Equal(t, 1, f.files.count())
}

func TestUpload_StorageErrorPropagates(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{}, nil)
	f.files.failErr = errBoom

	_, err := upload(f, aliceKey, []byte("x"))
	assert.ErrorIs(t, err, errBoom)
}

func TestUpload_ConcurrentUploadsGetDistinctIdentifiers(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{AttributeUploads: true}, nil)

	const n = 64
	var mu sync.Mutex
	ids := make(map[string]struct{}, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			id, err := upload(f, aliceKey, []byte{byte(i)})
			if err != nil {
				return err
			}
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, ids, n)
	assert.Equal(t, n, f.files.count())
}

func countBlobs(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(filepath.Join(root, "files"), func(_ string, d fs.DirEntry, err error) error {
		if errors.Is(err, fs.ErrNotExist) {
			return filepath.SkipDir
		}
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestUpload_ExternalBackend(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	blobs, err := storage.NewLocalBlobStore(root)
	require.NoError(t, err)
	f := newFixture(t, Options{}, blobs)

	id, err := upload(f, aliceKey, []byte("external"))
	require.NoError(t, err)

	rec, err := f.files.GetFile(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, rec.Data)
	require.NotNil(t, rec.StorageKey)
	assert.EqualValues(t, 8, rec.SizeBytes)

	tr, err := f.svc.Download(context.Background(), id)
	require.NoError(t, err)
	assert.EqualValues(t, 8, tr.Size)
	assert.Equal(t, []byte("external"), readAll(t, tr))
	assert.Equal(t, 1, countBlobs(t, root))
}

func TestUpload_ExternalBackendCleansUpOnInsertFailure(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	blobs, err := storage.NewLocalBlobStore(root)
	require.NoError(t, err)
	f := newFixture(t, Options{}, blobs)
	f.files.failErr = errBoom

	_, err = upload(f, aliceKey, []byte("orphan"))
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, countBlobs(t, root))
}

func TestTransfer_ContentDisposition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		filename string
		disp     Disposition
		want     string
	}{
		{"plain", "report.pdf", DispositionAttachment, `attachment; filename="report.pdf"`},
		{"spaces", "my cat.png", DispositionInline, `inline; filename="my cat.png"`},
		{"quote", `a"b.txt`, DispositionInline, `inline; filename="a_b.txt"; filename*=UTF-8''a%22b.txt`},
		{"unicode", "größe.txt", DispositionAttachment, `attachment; filename="gr__e.txt"; filename*=UTF-8''gr%C3%B6%C3%9Fe.txt`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := &Transfer{Filename: tt.filename, Disposition: tt.disp}
			assert.Equal(t, tt.want, tr.ContentDisposition())
		})
	}
}

func TestStripExtension(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc123", StripExtension("abc123.png"))
	assert.Equal(t, "abc123", StripExtension("abc123"))
	assert.Equal(t, "", StripExtension(".hidden"))
	assert.Equal(t, "a", StripExtension("a.b.c"))
}
