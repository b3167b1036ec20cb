package session_test

import (
	"testing"

	"github.com/hoprnet/hopr-corego/internal/testutils"
)

func TestMain(m *testing.M) {
	testutils.VerifyNoLeaks(m)
}
