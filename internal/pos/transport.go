package pos

import (
	"context"
	"net/http"
	"time"
)

// SendTimeout bounds every outbound provider call.
const SendTimeout = 30 * time.Second

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: SendTimeout}
}

// SendContext detaches ctx from the caller's cancellation and bounds it by
// SendTimeout.  Once a charge request is on the wire, the caller going away
// must not abort it half way; the outcome is settled by reconciliation.
func SendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), SendTimeout)
}
