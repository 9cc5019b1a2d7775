/*
Package resilience provides a circuit breaker for dependencies that fail
repeatedly, such as a Chrome binary that cannot start.

# Usage

	breaker := resilience.New("chrome-launch", resilience.Settings{
		Cooldown: 10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	proc, err := resilience.Execute(ctx, breaker, func(ctx context.Context) (*Process, error) {
		return launch(ctx, opts)
	})

# States

	Closed --[trip]-> Open --[cooldown]-> Half-Open --[successes]-> Closed
	                   ^                      |
	                   +------[failure]-------+

Every transition starts a new generation; outcomes recorded against an older
generation are dropped. Context cancellation does not count as a failure
unless Settings.IsFailure says otherwise.
*/
package resilience
