package objectstore

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	require.ErrorIs(t, translate("embed/f1.html", missing), ErrNotFound)

	other := errors.New("connection reset")
	err := translate("embed/f1.html", other)
	require.ErrorIs(t, err, other)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestLowerKeys(t *testing.T) {
	require.Equal(t, map[string]string{"form-version": "42"}, lowerKeys(map[string]string{"Form-Version": "42"}))
	require.Nil(t, lowerKeys(nil))
}
