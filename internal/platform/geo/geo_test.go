// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package geo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authkeeper/internal/platform/geo"
)

/*
TestIPAPIClient_Locate verifies path shape and payload decoding.
*/
func TestIPAPIClient_Locate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch request.URL.Path {
		case "/203.0.113.7/json/":
			_, _ = writer.Write([]byte(`{"ip":"203.0.113.7","region":"Hanoi","country_code":"VN"}`))
		case "/127.0.0.1/json/":
			_, _ = writer.Write([]byte(`{"ip":"127.0.0.1","error":true,"reason":"Reserved IP Address"}`))
		default:
			writer.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer server.Close()

	client := geo.NewIPAPIClient(server.URL+"/", time.Second)

	location, err := client.Locate(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, "Hanoi, VN", location.String())

	_, err = client.Locate(context.Background(), "127.0.0.1")
	assert.ErrorIs(t, err, geo.ErrUnresolvable)

	_, err = client.Locate(context.Background(), "198.51.100.1")
	assert.Error(t, err)

	_, err = client.Locate(context.Background(), "")
	assert.ErrorIs(t, err, geo.ErrUnresolvable)
}

/*
TestLocation_String verifies partial locations render cleanly.
*/
func TestLocation_String(t *testing.T) {
	assert.Equal(t, "Bavaria", geo.Location{Region: "Bavaria"}.String())
	assert.Equal(t, "DE", geo.Location{CountryCode: "DE"}.String())
	assert.True(t, geo.Location{}.IsZero())
}
