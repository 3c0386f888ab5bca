package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

type storageStub struct {
	folder   string
	name     string
	uploaded bytes.Buffer
	err      error
}

func (s *storageStub) Upload(ctx context.Context, folder, name string, reader io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.folder = folder
	s.name = name
	s.uploaded.Reset()
	if _, err := s.uploaded.ReadFrom(reader); err != nil {
		return "", err
	}
	return "https://cdn.example.com/" + folder + "/" + name, nil
}

func imageHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"picture\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["picture"]
	require.Len(t, files, 1)
	return files[0]
}

func TestMediaServiceStoresImage(t *testing.T) {
	storage := &storageStub{}
	svc := NewMediaService(storage, 5, zerolog.Nop())

	url, err := svc.UploadImage(context.Background(), imageHeader(t, "My Holiday!.PNG", pngBytes), MediaPurposePost)
	require.NoError(t, err)
	require.Equal(t, "posts", storage.folder)
	require.Equal(t, "my-holiday.png", storage.name)
	require.Equal(t, "https://cdn.example.com/posts/my-holiday.png", url)
	require.Equal(t, pngBytes, storage.uploaded.Bytes())
}

func TestMediaServiceRejectsSize(t *testing.T) {
	svc := NewMediaService(&storageStub{}, 1, zerolog.Nop())

	file := imageHeader(t, "big.png", append(append([]byte{}, pngBytes...), bytes.Repeat([]byte("a"), 2*1024*1024)...))
	_, err := svc.UploadImage(context.Background(), file, MediaPurposePost)
	require.ErrorIs(t, err, ErrUploadTooLarge)
}

func TestMediaServiceRejectsNonImages(t *testing.T) {
	svc := NewMediaService(&storageStub{}, 5, zerolog.Nop())

	_, err := svc.UploadImage(context.Background(), imageHeader(t, "notes.png", []byte("plain text")), MediaPurposeMessage)
	require.ErrorIs(t, err, ErrUploadTypeNotAllowed)
}

func TestMediaServiceWithoutStorage(t *testing.T) {
	svc := NewMediaService(nil, 5, zerolog.Nop())

	_, err := svc.UploadImage(context.Background(), imageHeader(t, "a.png", pngBytes), MediaPurposePost)
	require.ErrorIs(t, err, ErrMediaUnavailable)

	_, err = svc.UploadImage(context.Background(), nil, MediaPurposePost)
	require.ErrorIs(t, err, ErrValidation)
}

func TestMediaServicePropagatesStorageErrors(t *testing.T) {
	boom := errors.New("cdn down")
	svc := NewMediaService(&storageStub{err: boom}, 5, zerolog.Nop())

	_, err := svc.UploadImage(context.Background(), imageHeader(t, "a.png", pngBytes), MediaPurposePost)
	require.ErrorIs(t, err, boom)
}
