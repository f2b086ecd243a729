package storage

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func azureResponseError(code bloberror.Code, status int) error {
	return &azcore.ResponseError{
		ErrorCode:  string(code),
		StatusCode: status,
		RawResponse: &http.Response{
			StatusCode: status,
			Request:    httptest.NewRequest(http.MethodGet, "http://127.0.0.1:10000/devstoreaccount1/photos/a.png", nil),
		},
	}
}

func TestTranslateAzureError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{name: "blob not found", err: azureResponseError(bloberror.BlobNotFound, 404), sentinel: ErrNotFound},
		{name: "container not found", err: azureResponseError(bloberror.ContainerNotFound, 404), sentinel: ErrNotFound},
		{name: "bare 404 from HEAD", err: azureResponseError("", 404), sentinel: ErrNotFound},
		{name: "condition not met", err: azureResponseError(bloberror.ConditionNotMet, 412), sentinel: ErrConditionNotMet},
		{name: "if-none-match on existing blob", err: azureResponseError(bloberror.BlobAlreadyExists, 409), sentinel: ErrConditionNotMet},
		{name: "invalid name", err: azureResponseError(bloberror.InvalidResourceName, 400), sentinel: ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			translated := translateAzureError(tt.err)
			assert.ErrorIs(t, translated, tt.sentinel)

			var respErr *azcore.ResponseError
			assert.True(t, errors.As(translated, &respErr), "vendor error should stay in the chain")
		})
	}
}

func TestTranslateAzureError_PassesThroughOtherErrors(t *testing.T) {
	assert.NoError(t, translateAzureError(nil))

	authErr := azureResponseError(bloberror.AuthenticationFailed, 403)
	translated := translateAzureError(authErr)
	assert.Equal(t, authErr, translated)
	assert.False(t, errors.Is(translated, ErrNotFound))
}

func TestAzureModifiedAccessConditions(t *testing.T) {
	mac := azureModifiedAccessConditions(AccessCondition{IfMatch: `"0x8D"`})
	require.NotNil(t, mac.IfMatch)
	assert.Equal(t, azcore.ETag(`"0x8D"`), *mac.IfMatch)
	assert.Nil(t, mac.IfNoneMatch)

	mac = azureModifiedAccessConditions(AccessCondition{IfNoneMatch: ETagAny})
	require.NotNil(t, mac.IfNoneMatch)
	assert.Equal(t, azcore.ETagAny, *mac.IfNoneMatch)
	assert.Nil(t, mac.IfMatch)
}

func TestAzureStorage_URLs(t *testing.T) {
	storage, err := NewAzureStorage(azuriteConnectionString)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:10000/devstoreaccount1/photos-public", storage.ContainerURL("photos-public"))
	assert.Equal(t, "http://127.0.0.1:10000/devstoreaccount1/photos/2024/cat.png", storage.BlobURL("photos", "2024/cat.png"))
	assert.Equal(t, "http://127.0.0.1:10000/devstoreaccount1/photos/2024/summer%20trip/cat%3F.png", storage.BlobURL("photos", "2024/summer trip/cat?.png"))
}

func TestAzureStorage_BlobURLExtendsContainerURL(t *testing.T) {
	storage, err := NewAzureStorage(azuriteConnectionString)
	require.NoError(t, err)

	for _, name := range []string{"cat.png", "2024/cat.png", "a/b/c/d.txt"} {
		assert.Equal(t, storage.ContainerURL("photos-public")+"/"+name, storage.BlobURL("photos-public", name), name)
	}
}

func TestNewAzureStorage_InvalidConnectionString(t *testing.T) {
	storage, err := NewAzureStorage("not a connection string")
	assert.Error(t, err)
	assert.Nil(t, storage)
}
