package client

import "time"

// nextInterval advances the retransmit interval per spec.md §4.F: doubling
// with jitter, reset to InitialInterval from zero, and a randomized
// overflow reset once BackoffCutoff is exceeded.
func (c *Client) nextInterval() (next time.Duration) {
	cur := c.interval
	if cur <= 0 {
		return c.conf.InitialInterval
	}

	// interval += rand() mod (2*interval): new interval in [cur, 3*cur-1],
	// not a flat doubling -- it can stay roughly flat as easily as it can
	// nearly triple.
	grown := cur + time.Duration(c.rnd.Int63n(int64(2*cur)))
	if grown <= c.conf.BackoffCutoff {
		return grown
	}

	// Overflow past the cutoff: reset to cutoff/2 plus jitter up to cutoff,
	// rather than clamping flat at cutoff, so retransmits don't lock into a
	// single fixed period forever.
	half := c.conf.BackoffCutoff / 2

	return half + time.Duration(c.rnd.Int63n(int64(c.conf.BackoffCutoff)+1))
}

// panicDeadline returns the absolute time at which the current
// DISCOVER/REQUEST cycle gives up and enters panic mode, measured from
// firstSending.
func (c *Client) panicDeadline() (deadline time.Time) {
	return c.firstSending.Add(c.conf.Timeout)
}
