/*
Package resilience guards mixnet sessions with a circuit breaker.

A mixnet session can fail for reasons outside the caller's control: the
gateway goes away, the network requester stops answering, or the sandbox
reports a session error. Retrying setup in a tight loop only burns time, so
the client routes setup and fetch calls through a Breaker that opens after
repeated session failures and lets a single trial call through once its cooldown
elapses.

# Usage

	breaker := resilience.New("mixnet-session", resilience.Settings{
		Threshold: 5,
		Cooldown:  15 * time.Second,
		IsFailure: func(err error) bool { return errors.Is(err, rpc.ErrSession) },
		OnStateChange: func(name string, from, to resilience.State) {
			log.Info("breaker", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	resp, err := resilience.Do(breaker, func() (*http.Response, error) {
		return client.Fetch(ctx, url, args)
	})

Errors the IsFailure predicate rejects (bad requests, cancellations) pass
through without counting against the session.

# States

	Closed --[session failures]-> Open --[cooldown]-> Half-Open --[success]-> Closed
	                                                     |
	                                                 [failure]
	                                                     v
	                                                   Open
*/
package resilience
