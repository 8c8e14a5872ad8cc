// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package uuid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/authkeeper/pkg/uuid"
)

/*
TestNew verifies generated IDs are valid version 7 values.
*/
func TestNew(t *testing.T) {
	first := uuid.New()
	second := uuid.New()

	assert.True(t, uuid.Valid(first))
	assert.NotEqual(t, first, second)
	assert.Equal(t, byte('7'), first[14])
}

/*
TestValid rejects non-canonical forms.
*/
func TestValid(t *testing.T) {
	assert.True(t, uuid.Valid("0190f3a1-7b2c-7d4e-8f00-123456789abc"))
	assert.False(t, uuid.Valid("urn:uuid:0190f3a1-7b2c-7d4e-8f00-123456789abc"))
	assert.False(t, uuid.Valid("0190f3a17b2c7d4e8f00123456789abc"))
	assert.False(t, uuid.Valid("not-a-uuid"))
	assert.False(t, uuid.Valid(""))
}
