package membership

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/i-daichi/nagoyameshi/pkg/session"
)

func TestLimitKey(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/user/charge", nil)
	req.RemoteAddr = "203.0.113.7:5123"
	assert.Equal(t, "card:ip:203.0.113.7", limitKey(req))

	// A signed-in member is keyed on the user alone, whatever address they use.
	userID := uuid.New()
	sess := &session.Session{Identity: &session.Identity{UserID: userID, Role: "free", Authorities: []string{"FREE_USER"}}}
	for _, addr := range []string{"203.0.113.7:5123", "198.51.100.2:80"} {
		r := req.Clone(session.WithSession(req.Context(), sess))
		r.RemoteAddr = addr
		assert.Equal(t, "card:user:"+userID.String(), limitKey(r))
	}

	req.RemoteAddr = "not-an-address"
	assert.Empty(t, limitKey(req))
}
