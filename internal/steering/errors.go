package steering

import "errors"

// ErrRetrySession is the distinct retry-sentinel error variant settled onto
// any command items still queued when releaseSession runs (spec §3, §7
// "Session retry sentinel"). It is never string-compared by callers — they
// must use errors.Is.
var ErrRetrySession = errors.New("steering: session released mid-flight, retry as new runner")

// IsRetrySentinel reports whether err is (or wraps) the retry sentinel.
func IsRetrySentinel(err error) bool {
	return errors.Is(err, ErrRetrySession)
}
