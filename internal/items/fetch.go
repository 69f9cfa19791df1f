package items

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tabwarden/tabwarden/internal/httpclient"
)

const fetchMaxTries = 3

// fetchWithRetry performs a GET with exponential backoff. Client-side HTTP
// errors are permanent; retrying them would just repeat the same answer.
func fetchWithRetry(ctx context.Context, client httpclient.Client, url string) ([]byte, error) {
	operation := func() ([]byte, error) {
		data, err := client.Get(ctx, url)
		if err != nil {
			var httpErr *httpclient.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 &&
				httpErr.StatusCode != http.StatusTooManyRequests {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return data, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(fetchMaxTries),
	)
}
